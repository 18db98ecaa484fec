package solax_modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/tbrandon/mbserver"
)

// Meter registers polled by Solax X1 inverters (low byte of the register address)
const (
	METER_REGISTER_TOTAL_ENERGY    uint8 = 0x08
	METER_REGISTER_HANDSHAKE       uint8 = 0x0B
	METER_REGISTER_POWER_FLOAT     uint8 = 0x0C
	METER_REGISTER_POWER_INT16     uint8 = 0x0E
	METER_REGISTER_IMPORTED_ENERGY uint8 = 0x48
	METER_REGISTER_EXPORTED_ENERGY uint8 = 0x4A

	FUNC_READ_HOLDING_REGISTERS uint8 = 0x03
	FUNC_READ_INPUT_REGISTERS   uint8 = 0x04

	METER_REQUEST_SIZE          = 8
	DEFAULT_METER_ADDRESS uint8 = 0x01
)

var (
	ErrShortRequest      = errors.New("meter request too short")
	ErrUnhandledRegister = errors.New("unhandled register")
)

// MeterRequest is a decoded 8 byte read request sent by the inverter.
type MeterRequest struct {
	Address  uint8
	Function uint8
	Register uint16
	Count    uint16
}

// DecodeMeterRequest validates the CRC of an RTU read request and decodes it.
func DecodeMeterRequest(packet []byte) (*MeterRequest, error) {
	if len(packet) < METER_REQUEST_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRequest, len(packet))
	}
	frame, err := mbserver.NewRTUFrame(packet[:METER_REQUEST_SIZE])
	if err != nil {
		return nil, err
	}
	data := frame.GetData()
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d data bytes", ErrShortRequest, len(data))
	}
	return &MeterRequest{
		Address:  frame.Address,
		Function: frame.GetFunction(),
		Register: binary.BigEndian.Uint16(data[0:2]),
		Count:    binary.BigEndian.Uint16(data[2:4]),
	}, nil
}

func (r MeterRequest) RegisterLow() uint8 {
	return uint8(r.Register & 0xFF)
}

// IsPowerRequest reports whether the request reads the instantaneous power value.
func (r MeterRequest) IsPowerRequest() bool {
	reg := r.RegisterLow()
	return reg == METER_REGISTER_POWER_FLOAT || reg == METER_REGISTER_POWER_INT16
}

// Bytes encodes the request as an RTU frame (used by tests and the probe).
func (r MeterRequest) Bytes() []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], r.Register)
	binary.BigEndian.PutUint16(data[2:4], r.Count)
	frame := mbserver.RTUFrame{
		Address:  r.Address,
		Function: r.Function,
		Data:     data,
	}
	return frame.Bytes()
}

// EncodeMeterReply builds the reply to a meter poll carrying the given power demand in watts.
// Replies mirror what a Solax compatible meter answers for each register.
func EncodeMeterReply(req MeterRequest, demandWatts float64) ([]byte, error) {
	var function uint8
	var data []byte
	switch req.RegisterLow() {
	case METER_REGISTER_HANDSHAKE:
		function = FUNC_READ_HOLDING_REGISTERS
		data = []byte{0x02, 0x00, 0x00}
	case METER_REGISTER_POWER_FLOAT:
		function = FUNC_READ_INPUT_REGISTERS
		data = make([]byte, 5)
		data[0] = 0x04
		binary.BigEndian.PutUint32(data[1:], math.Float32bits(float32(demandWatts)))
	case METER_REGISTER_POWER_INT16:
		function = FUNC_READ_HOLDING_REGISTERS
		data = make([]byte, 3)
		data[0] = 0x02
		binary.BigEndian.PutUint16(data[1:], uint16(int16Watts(demandWatts)))
	case METER_REGISTER_TOTAL_ENERGY:
		function = FUNC_READ_HOLDING_REGISTERS
		data = make([]byte, 9)
		data[0] = 0x08
	case METER_REGISTER_IMPORTED_ENERGY, METER_REGISTER_EXPORTED_ENERGY:
		function = FUNC_READ_INPUT_REGISTERS
		data = []byte{0x04, 0x00, 0x00, 0x00, 0x00}
	default:
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnhandledRegister, req.Register)
	}
	frame := mbserver.RTUFrame{
		Address:  req.Address,
		Function: function,
		Data:     data,
	}
	return frame.Bytes(), nil
}

// EncodeMeterException builds an exception reply for the request.
func EncodeMeterException(req MeterRequest, exception mbserver.Exception) []byte {
	frame := mbserver.RTUFrame{
		Address:  req.Address,
		Function: req.Function,
	}
	frame.SetException(&exception)
	return frame.Bytes()
}

func int16Watts(watts float64) int16 {
	switch {
	case math.IsNaN(watts):
		return 0
	case watts > math.MaxInt16:
		return math.MaxInt16
	case watts < math.MinInt16:
		return math.MinInt16
	}
	return int16(watts)
}
