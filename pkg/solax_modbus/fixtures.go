package solax_modbus

import "encoding/binary"

// Sample frames captured from real inverters, used by tests and the probe.

// X1 mini status report (data_len 0x34: 52 bytes)
var X1MiniStatusReport = []byte{
	0xAA, 0x55, 0x00, 0x0A, 0x01, 0x00, 0x11, 0x82, 0x34, 0x00, 0x1A, 0x00, 0x02, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x09, 0x21, 0x13, 0x87, 0x00, 0x00, 0xFF, 0xFF, 0x00,
	0x00, 0x00, 0x12, 0x00, 0x00, 0x00, 0x15, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0xD6,
}

// X1 mini G2 status report (data_len 0x32: 50 bytes)
var X1MiniG2StatusReport = []byte{
	0xAA, 0x55, 0x00, 0x0A, 0x01, 0x00, 0x11, 0x82, 0x32, 0x00, 0x21, 0x00, 0x02, 0x07, 0xEC, 0x00,
	0x00, 0x00, 0x1D, 0x00, 0x00, 0x00, 0x18, 0x09, 0x55, 0x13, 0x80, 0x02, 0x2B, 0xFF, 0xFF, 0x00,
	0x00, 0x5D, 0xAF, 0x00, 0x00, 0x10, 0x50, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0xA4,
}

// TestStatusPayload builds a synthetic status payload of the given size.
func TestStatusPayload(size int, mode uint16, acPower uint16, errorBits uint32) []byte {
	data := make([]byte, size)
	binary.BigEndian.PutUint16(data[0:2], 0xFFFE) // -2 °C
	binary.BigEndian.PutUint16(data[2:4], 123)
	binary.BigEndian.PutUint16(data[4:6], 3100)
	binary.BigEndian.PutUint16(data[14:16], 2305)
	binary.BigEndian.PutUint16(data[16:18], 5001)
	binary.BigEndian.PutUint16(data[18:20], acPower)
	binary.BigEndian.PutUint32(data[22:26], 45678)
	binary.BigEndian.PutUint32(data[26:30], 3600)
	binary.BigEndian.PutUint16(data[30:32], mode)
	binary.LittleEndian.PutUint32(data[46:50], errorBits)
	if size > 50 {
		binary.BigEndian.PutUint16(data[50:52], 0xFF06) // -250
	}
	return data
}

func TestDeviceInfoPayload(serial string) []byte {
	data := make([]byte, DEVICE_INFO_SIZE)
	data[0] = 1
	copy(data[1:7], "  1000")
	copy(data[7:12], "1.10 ")
	copy(data[12:26], "X1-Mini")
	copy(data[26:40], "SolaX")
	copy(data[40:54], serial)
	copy(data[54:58], "360")
	return data
}
