package solax_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
)

var (
	powerFloatRequest = []byte{0x01, 0x04, 0x00, 0x0C, 0x00, 0x02, 0xB1, 0xC8}
	handshakeRequest  = []byte{0x01, 0x03, 0x00, 0x0B, 0x00, 0x01, 0xF5, 0xC8}
	powerInt16Request = []byte{0x01, 0x03, 0x00, 0x0E, 0x00, 0x01, 0xE5, 0xC9}
	unhandledRequest  = []byte{0x01, 0x03, 0x00, 0x20, 0x00, 0x01, 0x85, 0xC0}
)

func TestDecodeMeterRequest(t *testing.T) {

	require := require.New(t)

	req, err := DecodeMeterRequest(powerFloatRequest)
	require.NoError(err)
	require.Equal(uint8(0x01), req.Address)
	require.Equal(FUNC_READ_INPUT_REGISTERS, req.Function)
	require.Equal(uint16(0x000C), req.Register)
	require.Equal(uint16(2), req.Count)
	require.True(req.IsPowerRequest())
	require.Equal(powerFloatRequest, req.Bytes())
}

func TestDecodeMeterRequestBadCRC(t *testing.T) {

	broken := append([]byte(nil), powerFloatRequest...)
	broken[7] ^= 0xFF
	_, err := DecodeMeterRequest(broken)
	assert.Error(t, err)
}

func TestDecodeMeterRequestShort(t *testing.T) {

	_, err := DecodeMeterRequest(powerFloatRequest[:5])
	assert.True(t, errors.Is(err, ErrShortRequest))
}

func TestEncodeMeterReplyFloat(t *testing.T) {

	require := require.New(t)

	req, err := DecodeMeterRequest(powerFloatRequest)
	require.NoError(err)
	reply, err := EncodeMeterReply(*req, 150)
	require.NoError(err)
	require.Equal([]byte{0x01, 0x04, 0x04, 0x43, 0x16, 0x00, 0x00, 0x0F, 0xC4}, reply)
}

func TestEncodeMeterReplyInt16(t *testing.T) {

	require := require.New(t)

	req, err := DecodeMeterRequest(powerInt16Request)
	require.NoError(err)
	reply, err := EncodeMeterReply(*req, -300.7)
	require.NoError(err)
	require.Equal([]byte{0x01, 0x03, 0x02, 0xFE, 0xD4, 0xF8, 0x7B}, reply)
}

func TestEncodeMeterReplyHandshake(t *testing.T) {

	require := require.New(t)

	req, err := DecodeMeterRequest(handshakeRequest)
	require.NoError(err)
	require.False(req.IsPowerRequest())
	reply, err := EncodeMeterReply(*req, 999)
	require.NoError(err)
	require.Equal([]byte{0x01, 0x03, 0x02, 0x00, 0x00, 0xB8, 0x44}, reply)
}

func TestEncodeMeterReplyEnergyRegisters(t *testing.T) {

	assert := assert.New(t)

	total, err := EncodeMeterReply(MeterRequest{Address: 1, Function: 3, Register: 0x08, Count: 4}, 10)
	assert.NoError(err)
	assert.Len(total, 3+8+2)
	assert.Equal([]byte{0x01, 0x03, 0x08}, total[:3])

	imported, err := EncodeMeterReply(MeterRequest{Address: 1, Function: 4, Register: 0x48, Count: 2}, 10)
	assert.NoError(err)
	assert.Equal([]byte{0x01, 0x04, 0x04, 0x00, 0x00, 0x00, 0x00}, imported[:7])

	exported, err := EncodeMeterReply(MeterRequest{Address: 1, Function: 4, Register: 0x4A, Count: 2}, 10)
	assert.NoError(err)
	assert.Equal(imported, exported)

	// replies must parse back as valid RTU frames
	_, err = mbserver.NewRTUFrame(total)
	assert.NoError(err)
}

func TestEncodeMeterReplyUnhandled(t *testing.T) {

	require := require.New(t)

	req, err := DecodeMeterRequest(unhandledRequest)
	require.NoError(err)
	_, err = EncodeMeterReply(*req, 0)
	require.True(errors.Is(err, ErrUnhandledRegister))
}

func TestEncodeMeterException(t *testing.T) {

	reply := EncodeMeterException(MeterRequest{Address: 1, Function: 3, Register: 0x20, Count: 1}, mbserver.IllegalDataAddress)
	assert.Equal(t, []byte{0x01, 0x83, 0x02}, reply[:3])
}

func TestInt16WattsSaturates(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(int16(32767), int16Watts(50000))
	assert.Equal(int16(-32768), int16Watts(-50000))
	assert.Equal(int16(42), int16Watts(42.9))
}
