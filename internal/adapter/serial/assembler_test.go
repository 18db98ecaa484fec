package serial

import (
	"errors"
	"testing"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var powerRequest = solax_modbus.MeterRequest{
	Address:  1,
	Function: solax_modbus.FUNC_READ_INPUT_REGISTERS,
	Register: uint16(solax_modbus.METER_REGISTER_POWER_FLOAT),
	Count:    2,
}

func TestAssemblerSplitsFrames(t *testing.T) {

	require := require.New(t)

	a := newFrameAssembler(solax_modbus.RTURequestFramer{})
	req := powerRequest.Bytes()

	frames, err := a.Push(req[:3])
	require.NoError(err)
	require.Empty(frames)
	require.Equal(3, a.Pending())

	// rest of the first frame plus a full second one
	frames, err = a.Push(append(append([]byte{}, req[3:]...), req...))
	require.NoError(err)
	require.Len(frames, 2)
	require.Equal(req, frames[0])
	require.Equal(req, frames[1])
	require.Equal(0, a.Pending())
}

func TestAssemblerResetsOnFramingError(t *testing.T) {

	assert := assert.New(t)

	a := newFrameAssembler(solax_modbus.AA55Framer{})
	frames, err := a.Push([]byte{0x01, 0x02})
	assert.True(errors.Is(err, solax_modbus.ErrFrameHeader))
	assert.Empty(frames)
	assert.Equal(0, a.Pending())

	msg := solax_modbus.QueryStatusMessage(0x0A).Bytes()
	frames, err = a.Push(msg)
	assert.NoError(err)
	assert.Len(frames, 1)
	assert.Equal(msg, frames[0])
}

func TestTestLinkGapDropsPartialFrame(t *testing.T) {

	require := require.New(t)

	var received [][]byte
	link := NewTestLink(solax_modbus.RTURequestFramer{})
	require.NoError(link.Open(func(frame []byte) { received = append(received, frame) }, func(error) {}))

	req := powerRequest.Bytes()
	require.NoError(link.Receive(req[:5]))
	link.Gap()
	require.NoError(link.Receive(req))
	require.Len(received, 1)
	require.Equal(req, received[0])

	require.NoError(link.Write([]byte{0x01}))
	require.Equal([]byte{0x01}, <-link.Written)

	require.NoError(link.Close())
	require.True(errors.Is(link.Write([]byte{0x01}), ErrLinkClosed))
}
