package sunspec_modbus

import (
	"math"

	"github.com/simonvetter/modbus"
)

// TestMeterHandler is a modbus.RequestHandler serving a SunSpec register map with a common
// block and one meter block.
type TestMeterHandler struct {
	regs map[uint16]uint16
}

func (h *TestMeterHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *TestMeterHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *TestMeterHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	res := make([]uint16, req.Quantity)
	for i := range res {
		res[i] = h.regs[req.Addr+uint16(i)]
	}
	return res, nil
}

func (h *TestMeterHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *TestMeterHandler) putString(addr uint16, text string) {
	b := []byte(text)
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	for i := 0; i < len(b); i += 2 {
		h.regs[addr+uint16(i/2)] = uint16(b[i])<<8 | uint16(b[i+1])
	}
}

func (h *TestMeterHandler) putFloat(addr uint16, value float32) {
	bits := math.Float32bits(value)
	h.regs[addr] = uint16(bits >> 16)
	h.regs[addr+1] = uint16(bits)
}

// NewTestIntSFMeterHandler serves a model 203 meter reading -1234.5 W.
func NewTestIntSFMeterHandler() *TestMeterHandler {
	h := &TestMeterHandler{regs: map[uint16]uint16{}}
	h.putString(40000, "SunS")
	// common block
	h.regs[40002] = 1
	h.regs[40003] = 66
	h.putString(40004, "SolaxGW Energy Systems Ltd")
	h.putString(40020, "TS 65A-3 Three Phase Meter")
	h.putString(40044, "1.2.0-rc1 build")
	h.putString(40052, "SN0001-2024-ABCDEFGH-0042")
	// meter block, model 203
	meter := uint16(40070)
	h.regs[meter] = 203
	h.regs[meter+1] = 105
	data := meter + 2
	h.regs[data+6] = 2301
	h.regs[data+13] = uint16(0xFFFF) // -1
	h.regs[data+14] = 5000
	h.regs[data+15] = uint16(0xFFFE) // -2
	neg := int16(-12345)
	h.regs[data+16] = uint16(neg)
	h.regs[data+20] = uint16(0xFFFF) // -1
	h.regs[data+36] = 0
	h.regs[data+37] = 20000
	h.regs[data+44] = 1
	h.regs[data+45] = 0
	h.regs[data+52] = 0
	// end block
	h.regs[meter+105+2] = SUNSPEC_MODEL_END
	return h
}

// NewTestFloatMeterHandler serves a model 213 meter reading 842 W.
func NewTestFloatMeterHandler() *TestMeterHandler {
	h := &TestMeterHandler{regs: map[uint16]uint16{}}
	h.putString(40000, "SunS")
	h.regs[40002] = 1
	h.regs[40003] = 66
	h.putString(40004, "SolaxGW")
	meter := uint16(40070)
	h.regs[meter] = 213
	h.regs[meter+1] = 124
	data := meter + 2
	h.putFloat(data+10, 229.5)
	h.putFloat(data+24, 49.98)
	h.putFloat(data+26, 842)
	h.putFloat(data+58, 1500)
	h.putFloat(data+66, 2500)
	h.regs[meter+124+2] = SUNSPEC_MODEL_END
	return h
}
