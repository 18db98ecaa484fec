package solax_modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	AA55_HEADER_SIZE   = 9
	AA55_CHECKSUM_SIZE = 2
	AA55_MIN_SIZE      = AA55_HEADER_SIZE + AA55_CHECKSUM_SIZE

	AA55_BROADCAST_ADDRESS   uint8 = 0xFF
	DEFAULT_INVERTER_ADDRESS uint8 = 0x0A

	CONTROL_REGISTER uint8 = 0x10
	CONTROL_READ     uint8 = 0x11

	FUNC_DISCOVER_DEVICES   uint8 = 0x00
	FUNC_REGISTER_ADDRESS   uint8 = 0x01
	FUNC_QUERY_STATUS       uint8 = 0x02
	FUNC_QUERY_DEVICE_INFO  uint8 = 0x03
	FUNC_QUERY_SETTINGS     uint8 = 0x04
	FUNC_ANNOUNCE_SERIAL    uint8 = 0x80
	FUNC_STATUS_REPORT      uint8 = 0x82
	FUNC_DEVICE_INFO_REPORT uint8 = 0x83
	FUNC_SETTINGS_REPORT    uint8 = 0x84
)

var (
	ErrAA55Header   = errors.New("aa55: invalid header")
	ErrAA55Checksum = errors.New("aa55: checksum mismatch")
	ErrAA55Short    = errors.New("aa55: frame too short")
)

// Message is a Solax AA55 frame on the inverter COM bus.
type Message struct {
	Source      [2]byte
	Destination [2]byte
	Control     uint8
	Function    uint8
	Data        []byte
}

// DeviceAddress is the bus address of the inverter that sent the frame.
func (m Message) DeviceAddress() uint8 {
	return m.Source[1]
}

func (m Message) Bytes() []byte {
	buf := make([]byte, 0, AA55_MIN_SIZE+len(m.Data))
	buf = append(buf, 0xAA, 0x55)
	buf = append(buf, m.Source[:]...)
	buf = append(buf, m.Destination[:]...)
	buf = append(buf, m.Control, m.Function, uint8(len(m.Data)))
	buf = append(buf, m.Data...)
	return binary.BigEndian.AppendUint16(buf, AA55Checksum(buf))
}

// IsSerialAnnouncement reports whether the frame is an unregistered inverter announcing its serial number.
func (m Message) IsSerialAnnouncement() bool {
	return m.DeviceAddress() == AA55_BROADCAST_ADDRESS && m.Control == CONTROL_REGISTER &&
		m.Function == FUNC_ANNOUNCE_SERIAL && len(m.Data) == SERIAL_NUMBER_SIZE
}

func (m Message) IsReport() bool {
	return m.Control == CONTROL_READ && m.Function&0x80 != 0
}

func (m Message) String() string {
	return fmt.Sprintf("aa55{src=%02X%02X dst=%02X%02X ctl=%02X fn=%02X len=%d}",
		m.Source[0], m.Source[1], m.Destination[0], m.Destination[1], m.Control, m.Function, len(m.Data))
}

// AA55Checksum is the 16 bit sum of every byte.
func AA55Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// AA55FrameSize returns the expected full size of the frame starting at buf, or 0 when the
// header is not complete yet.
func AA55FrameSize(buf []byte) int {
	if len(buf) < AA55_HEADER_SIZE {
		return 0
	}
	return AA55_MIN_SIZE + int(buf[8])
}

func DecodeMessage(frame []byte) (*Message, error) {
	if len(frame) < AA55_MIN_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrAA55Short, len(frame))
	}
	if frame[0] != 0xAA || frame[1] != 0x55 {
		return nil, ErrAA55Header
	}
	size := AA55FrameSize(frame)
	if len(frame) < size {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrAA55Short, len(frame), size)
	}
	expected := binary.BigEndian.Uint16(frame[size-2 : size])
	if got := AA55Checksum(frame[:size-2]); got != expected {
		return nil, fmt.Errorf("%w: expected %04X, got %04X", ErrAA55Checksum, expected, got)
	}
	msg := &Message{
		Control:  frame[6],
		Function: frame[7],
		Data:     append([]byte(nil), frame[AA55_HEADER_SIZE:size-2]...),
	}
	copy(msg.Source[:], frame[2:4])
	copy(msg.Destination[:], frame[4:6])
	return msg, nil
}

// master requests

func DiscoverDevicesMessage() Message {
	return Message{
		Source:   [2]byte{0x01, 0x00},
		Control:  CONTROL_REGISTER,
		Function: FUNC_DISCOVER_DEVICES,
	}
}

func RegisterAddressMessage(sn SerialNumber, address uint8) Message {
	data := make([]byte, 0, SERIAL_NUMBER_SIZE+1)
	data = append(data, sn[:]...)
	data = append(data, address)
	return Message{
		Control:  CONTROL_REGISTER,
		Function: FUNC_REGISTER_ADDRESS,
		Data:     data,
	}
}

func QueryMessage(address uint8, function uint8) Message {
	return Message{
		Source:      [2]byte{0x01, 0x00},
		Destination: [2]byte{0x00, address},
		Control:     CONTROL_READ,
		Function:    function,
	}
}

func QueryStatusMessage(address uint8) Message {
	return QueryMessage(address, FUNC_QUERY_STATUS)
}

func QueryDeviceInfoMessage(address uint8) Message {
	return QueryMessage(address, FUNC_QUERY_DEVICE_INFO)
}

func QuerySettingsMessage(address uint8) Message {
	return QueryMessage(address, FUNC_QUERY_SETTINGS)
}
