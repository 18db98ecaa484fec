package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

var ErrNotSunSpec = errors.New("could not find a SunSpec device")

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_MODEL_END
}

// data returns the address of the given register offset inside the block, skipping id and length
func (block *modbusBlock) data(offset uint16) uint16 {
	return block.baseAddr + 2 + offset
}

func surveyModbusBlock(reader ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	header, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       header[0],
		length:   header[1],
		baseAddr: baseAddr,
	}, nil
}

type meterBlocks struct {
	common *modbusBlock
	meter  *modbusBlock
}

func (blk *meterBlocks) AllBlocksDefined() bool {
	return blk.common != nil && blk.meter != nil
}

func isMeterModel(id uint16) bool {
	return (id >= SUNSPEC_METER_INT_MIN && id <= SUNSPEC_METER_INT_MAX) ||
		(id >= SUNSPEC_METER_FLT_MIN && id <= SUNSPEC_METER_FLT_MAX)
}

func surveyMeter(reader ModbusClient) (*meterBlocks, error) {
	// check SunSpec
	str, err := reader.readString(SUNSPEC_BASE_ADDRESS, 4)
	if err != nil {
		return nil, err
	}
	if str != "SunS" {
		return nil, ErrNotSunSpec
	}

	blocks := meterBlocks{}
	baseAddr := SUNSPEC_FIRST_MODEL
	// ensure the loop has an ending
	for n := 0; n < 16 && !blocks.AllBlocksDefined(); n++ {
		block, err := surveyModbusBlock(reader, baseAddr)
		if err != nil {
			return nil, err
		}
		if block.isEndBlock() {
			break
		}
		switch {
		case block.id == SUNSPEC_MODEL_COMMON:
			blocks.common = block
		case isMeterModel(block.id):
			blocks.meter = block
		}
		baseAddr = baseAddr + block.length + 2
	}
	if !blocks.AllBlocksDefined() {
		return nil, errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	return &blocks, nil
}
