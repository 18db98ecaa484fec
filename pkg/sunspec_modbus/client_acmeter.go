package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var ErrNotSurveyed = errors.New("meter not surveyed, call Open first")

// register offsets inside the meter block data
type meterLayout struct {
	float         bool
	phaseAVoltage uint16
	voltageSF     uint16
	frequency     uint16
	frequencySF   uint16
	power         uint16
	powerSF       uint16
	energyExport  uint16
	energyImport  uint16
	energySF      uint16
}

var (
	intSFLayout = meterLayout{
		phaseAVoltage: 6,
		voltageSF:     13,
		frequency:     14,
		frequencySF:   15,
		power:         16,
		powerSF:       20,
		energyExport:  36,
		energyImport:  44,
		energySF:      52,
	}
	floatLayout = meterLayout{
		float:         true,
		phaseAVoltage: 10,
		frequency:     24,
		power:         26,
		energyExport:  58,
		energyImport:  66,
	}
)

type ACMeterModbusReaderImpl struct {
	ModbusClient
	blocks *meterBlocks
	layout meterLayout
}

func CreateACMeterModbusReader(ip string, port uint, acMeterAddress uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "acMeter"), zap.Uint8("acMeter", acMeterAddress)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// set ac meter address
	err = client.SetUnitId(acMeterAddress)
	if err != nil {
		return nil, err
	}
	return &ACMeterModbusReaderImpl{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
	}, nil
}

func (reader *ACMeterModbusReaderImpl) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	blocks, err := surveyMeter(reader.ModbusClient)
	if err != nil {
		reader.client.Close()
		return err
	}
	reader.blocks = blocks
	if blocks.meter.id >= SUNSPEC_METER_FLT_MIN {
		reader.layout = floatLayout
	} else {
		reader.layout = intSFLayout
	}
	return nil
}

func (reader *ACMeterModbusReaderImpl) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterModbusReaderImpl) GetInfo() (*ACMeterInfo, error) {
	if reader.blocks == nil {
		return nil, ErrNotSurveyed
	}
	common := reader.blocks.common
	manufacturer, err := reader.readString(common.data(0), 32)
	if err != nil {
		return nil, err
	}
	model, err := reader.readString(common.data(16), 32)
	if err != nil {
		return nil, err
	}
	version, err := reader.readString(common.data(40), 16)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readString(common.data(48), 32)
	if err != nil {
		return nil, err
	}

	return &ACMeterInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
		MeterModel:   reader.blocks.meter.id,
	}, nil
}

func (reader *ACMeterModbusReaderImpl) GetCurrentPowerFlowWatt() (float64, error) {
	if reader.blocks == nil {
		return 0, ErrNotSurveyed
	}
	if reader.layout.float {
		return reader.readFloat(reader.layout.power)
	}
	return reader.readScaled(reader.layout.power, reader.layout.powerSF, true)
}

func (reader *ACMeterModbusReaderImpl) GetPowerFlow() (*ACMeterPowerFlow, error) {
	totalRealPower, err := reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	flow := newPowerFlow(totalRealPower)

	if reader.layout.float {
		if flow.TotalEnergyExportedKWh, err = reader.readFloat(reader.layout.energyExport); err != nil {
			return nil, err
		}
		if flow.TotalEnergyImportedKWh, err = reader.readFloat(reader.layout.energyImport); err != nil {
			return nil, err
		}
		if flow.Frequency, err = reader.readFloat(reader.layout.frequency); err != nil {
			return nil, err
		}
		if flow.PhaseAVoltage, err = reader.readFloat(reader.layout.phaseAVoltage); err != nil {
			return nil, err
		}
	} else {
		meter := reader.blocks.meter
		totalEnergyExported, err := reader.readUint32(meter.data(reader.layout.energyExport), modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		totalEnergyImported, err := reader.readUint32(meter.data(reader.layout.energyImport), modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		totWhSF, err := reader.readRegister(meter.data(reader.layout.energySF), modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		flow.TotalEnergyExportedKWh = applySFuint32(totalEnergyExported, totWhSF)
		flow.TotalEnergyImportedKWh = applySFuint32(totalEnergyImported, totWhSF)
		freq, err := reader.readRegisters(meter.data(reader.layout.frequency), 2, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		flow.Frequency = applySF(freq[0], freq[1])
		if flow.PhaseAVoltage, err = reader.readScaled(reader.layout.phaseAVoltage, reader.layout.voltageSF, false); err != nil {
			return nil, err
		}
	}
	// energy is reported in Wh
	flow.TotalEnergyExportedKWh /= 1000
	flow.TotalEnergyImportedKWh /= 1000
	return &flow, nil
}

func (reader *ACMeterModbusReaderImpl) readFloat(offset uint16) (float64, error) {
	value, err := reader.readFloat32(reader.blocks.meter.data(offset), modbus.HOLDING_REGISTER)
	return float64(value), err
}

func (reader *ACMeterModbusReaderImpl) readScaled(offset uint16, sfOffset uint16, signed bool) (float64, error) {
	value, err := reader.readRegister(reader.blocks.meter.data(offset), modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	sf, err := reader.readRegister(reader.blocks.meter.data(sfOffset), modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if signed {
		return applySFint16(int16(value), sf), nil
	}
	return applySF(value, sf), nil
}

var _ ACMeterModbusReader = &ACMeterModbusReaderImpl{}
