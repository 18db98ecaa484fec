package service

import (
	"errors"
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(id string) BusHandler[int, string] {
	return BusHandlerFunc[int, string](func(req int) (string, error) {
		return id, nil
	})
}

func TestRegistryDispatchByAddress(t *testing.T) {

	require := require.New(t)

	reg := NewBusRegistry[int, string]("meter")
	require.NoError(reg.Register(domain.BusDevice{Id: "gw1", Address: 1}, echoHandler("gw1")))
	require.NoError(reg.Register(domain.BusDevice{Id: "gw2", Address: 2}, echoHandler("gw2")))

	resp, err := reg.Dispatch(1, 0)
	require.NoError(err)
	require.Equal("gw1", resp)

	resp, err = reg.Dispatch(2, 0)
	require.NoError(err)
	require.Equal("gw2", resp)

	require.Equal(2, reg.Len())
	devices := reg.Devices()
	require.Equal("gw1", devices[0].Id)
	require.Equal("gw2", devices[1].Id)
}

func TestRegistryAddressConflict(t *testing.T) {

	assert := assert.New(t)

	reg := NewBusRegistry[int, string]("meter")
	assert.NoError(reg.Register(domain.BusDevice{Id: "gw1", Address: 1}, echoHandler("gw1")))
	err := reg.Register(domain.BusDevice{Id: "gw2", Address: 1}, echoHandler("gw2"))
	assert.True(errors.Is(err, ErrAddressConflict))

	// the first registration is kept
	resp, err := reg.Dispatch(1, 0)
	assert.NoError(err)
	assert.Equal("gw1", resp)
}

func TestRegistryUnknownAddress(t *testing.T) {

	reg := NewBusRegistry[int, string]("meter")
	_, err := reg.Dispatch(7, 0)
	assert.True(t, errors.Is(err, ErrUnknownAddress))
}

func TestRegistriesAreIndependentPerBus(t *testing.T) {

	assert := assert.New(t)

	meter := NewBusRegistry[int, string]("meter")
	inverter := NewBusRegistry[int, string]("inverter")
	assert.NoError(meter.Register(domain.BusDevice{Id: "gw1", Address: 1}, echoHandler("gw1")))
	assert.NoError(inverter.Register(domain.BusDevice{Id: "inv1", Address: 1}, echoHandler("inv1")))

	resp, _ := inverter.Dispatch(1, 0)
	assert.Equal("inv1", resp)
}

func TestRegistryFindBySerialNumber(t *testing.T) {

	require := require.New(t)

	sn, err := solax_modbus.ParseSerialNumber(solax_modbus.DEFAULT_SERIAL_NUMBER)
	require.NoError(err)

	reg := NewBusRegistry[int, string]("inverter")
	require.NoError(reg.Register(domain.BusDevice{Id: "inv1", Address: 0x0A, SerialNumber: &sn}, echoHandler("inv1")))

	dev, ok := reg.FindBySerialNumber(sn)
	require.True(ok)
	require.Equal("inv1", dev.Id)

	other := sn
	other[0] ^= 0xFF
	_, ok = reg.FindBySerialNumber(other)
	require.False(ok)

	dev, ok = reg.LookupById("inv1")
	require.True(ok)
	require.Equal(uint8(0x0A), dev.Address)
}
