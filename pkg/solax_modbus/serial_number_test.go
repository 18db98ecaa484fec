package solax_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultSerialNumber(t *testing.T) {

	require := require.New(t)

	sn, err := ParseSerialNumber(DEFAULT_SERIAL_NUMBER)
	require.NoError(err)
	require.Equal(SerialNumber{0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x37, 0x36, 0x35, 0x34, 0x33, 0x32, 0x31}, sn)
	require.Equal(DEFAULT_SERIAL_NUMBER, sn.String())
}

func TestSerialNumberIsNormalizedToUppercase(t *testing.T) {

	assert := assert.New(t)

	sn, err := ParseSerialNumber("abcdef0123456789abcdef012345")
	assert.NoError(err)
	assert.Equal("ABCDEF0123456789ABCDEF012345", sn.String())

	normalized, err := NormalizeSerialNumber("AbCdEf0123456789aBcDeF012345")
	assert.NoError(err)
	assert.Equal("ABCDEF0123456789ABCDEF012345", normalized)
}

func TestSerialNumberRoundTrip(t *testing.T) {

	assert := assert.New(t)

	inputs := []string{
		DEFAULT_SERIAL_NUMBER,
		"0000000000000000000000000000",
		"FFFFFFFFFFFFFFFFFFFFFFFFFFFF",
		"00ff00ff00ff00ff00ff00ff00ff",
	}
	for _, in := range inputs {
		sn, err := ParseSerialNumber(in)
		assert.NoError(err, in)
		again, err := ParseSerialNumber(sn.String())
		assert.NoError(err, in)
		assert.Equal(sn, again, in)
		fromBytes, err := SerialNumberFromBytes(sn.Bytes())
		assert.NoError(err, in)
		assert.Equal(sn, fromBytes, in)
	}
}

func TestSerialNumberWrongLength(t *testing.T) {

	assert := assert.New(t)

	for _, in := range []string{"", "31", DEFAULT_SERIAL_NUMBER + "3", DEFAULT_SERIAL_NUMBER[:27]} {
		_, err := ParseSerialNumber(in)
		assert.Error(err, in)
		assert.True(errors.Is(err, ErrSerialWrongLength), in)
		assert.False(errors.Is(err, ErrSerialNonHex), in)

		var formatErr *SerialFormatError
		assert.True(errors.As(err, &formatErr))
		assert.Equal(SERIAL_WRONG_LENGTH, formatErr.Reason)
	}
}

func TestSerialNumberNonHex(t *testing.T) {

	assert := assert.New(t)

	_, err := ParseSerialNumber("31323334353637373635343332ZZ")
	assert.True(errors.Is(err, ErrSerialNonHex))

	var formatErr *SerialFormatError
	assert.True(errors.As(err, &formatErr))
	assert.Equal(SERIAL_NON_HEX, formatErr.Reason)
	assert.Equal(13, formatErr.Pair)

	_, err = ParseSerialNumber("0x323334353637373635343332ab")
	assert.True(errors.Is(err, ErrSerialNonHex))
}

func TestSerialNumberMultiByteInput(t *testing.T) {

	assert := assert.New(t)

	// 27 characters, 28 bytes
	_, err := ParseSerialNumber(DEFAULT_SERIAL_NUMBER[:26] + "é")
	assert.ErrorIs(err, ErrSerialWrongLength)

	// 28 characters, 29 bytes
	_, err = ParseSerialNumber(DEFAULT_SERIAL_NUMBER[:27] + "é")
	var formatErr *SerialFormatError
	assert.True(errors.As(err, &formatErr))
	assert.Equal(SERIAL_NON_HEX, formatErr.Reason)
	assert.Equal(13, formatErr.Pair)
}

func TestSerialNumberFromBytesLength(t *testing.T) {

	_, err := SerialNumberFromBytes([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrSerialWrongLength)
}
