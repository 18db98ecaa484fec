package solax_modbus

import (
	"errors"
)

var ErrFrameHeader = errors.New("unexpected frame start")

// Framer splits a serial byte stream into frames.
type Framer interface {
	// Next returns the length of the complete frame at the start of buf, 0 when more bytes are
	// needed, or an error when buf cannot start a valid frame and must be discarded.
	Next(buf []byte) (int, error)
	MaxFrameSize() int
}

// RTURequestFramer frames the fixed size read requests sent by the inverter to its meter.
type RTURequestFramer struct{}

func (RTURequestFramer) Next(buf []byte) (int, error) {
	if len(buf) >= 2 && buf[1]&0x80 != 0 {
		return 0, ErrFrameHeader
	}
	if len(buf) < METER_REQUEST_SIZE {
		return 0, nil
	}
	return METER_REQUEST_SIZE, nil
}

func (RTURequestFramer) MaxFrameSize() int {
	return METER_REQUEST_SIZE
}

// AA55Framer frames Solax AA55 messages using the length byte of the header.
type AA55Framer struct{}

func (AA55Framer) Next(buf []byte) (int, error) {
	if len(buf) >= 1 && buf[0] != 0xAA {
		return 0, ErrFrameHeader
	}
	if len(buf) >= 2 && buf[1] != 0x55 {
		return 0, ErrFrameHeader
	}
	size := AA55FrameSize(buf)
	if size == 0 || len(buf) < size {
		return 0, nil
	}
	return size, nil
}

func (AA55Framer) MaxFrameSize() int {
	return AA55_MIN_SIZE + 0xFF
}

// ensure interface compliance
var _ Framer = RTURequestFramer{}
var _ Framer = AA55Framer{}
