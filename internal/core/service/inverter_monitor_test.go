package service

import (
	"errors"
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSerial(t *testing.T) solax_modbus.SerialNumber {
	sn, err := solax_modbus.ParseSerialNumber(solax_modbus.DEFAULT_SERIAL_NUMBER)
	require.NoError(t, err)
	return sn
}

func TestInverterMonitorRediscoveryCycle(t *testing.T) {

	assert := assert.New(t)

	m := NewInverterMonitor("inv", solax_modbus.DEFAULT_INVERTER_ADDRESS, testSerial(t), solax_modbus.X1MiniModel)

	// first update announces the address
	action, offline := m.OnUpdate()
	assert.Equal(UPDATE_REDISCOVER, action)
	assert.NotNil(offline)
	assert.Equal(solax_modbus.MODE_OFFLINE, offline.Mode)

	for i := 0; i < REDISCOVERY_THRESHOLD; i++ {
		action, offline = m.OnUpdate()
		assert.Equal(UPDATE_QUERY_STATUS, action)
		assert.Nil(offline)
	}
	action, _ = m.OnUpdate()
	assert.Equal(UPDATE_REDISCOVER, action)
	assert.False(m.State().Online)
}

func TestInverterMonitorStatusResetsCounter(t *testing.T) {

	require := require.New(t)

	m := NewInverterMonitor("inv", solax_modbus.DEFAULT_INVERTER_ADDRESS, testSerial(t), solax_modbus.X1MiniModel)
	m.OnUpdate()
	for i := 0; i < REDISCOVERY_THRESHOLD-1; i++ {
		m.OnUpdate()
	}

	msg, err := solax_modbus.DecodeMessage(solax_modbus.X1MiniG2StatusReport)
	require.NoError(err)
	report, err := m.Handle(*msg)
	require.NoError(err)
	require.NotNil(report.Status)
	require.Equal(float64(555), report.Status.ACPower)
	require.True(m.State().Online)
	require.NotNil(m.State().LastSeen)

	// counter restarted, the next updates are queries again
	for i := 0; i < REDISCOVERY_THRESHOLD; i++ {
		action, _ := m.OnUpdate()
		require.Equal(UPDATE_QUERY_STATUS, action)
	}
}

func TestInverterMonitorReports(t *testing.T) {

	assert := assert.New(t)

	m := NewInverterMonitor("inv", solax_modbus.DEFAULT_INVERTER_ADDRESS, testSerial(t), solax_modbus.X1MiniModel)

	report, err := m.Handle(solax_modbus.Message{Function: solax_modbus.FUNC_DEVICE_INFO_REPORT, Data: solax_modbus.TestDeviceInfoPayload("XM1234567890AB")})
	assert.NoError(err)
	assert.Equal("XM1234567890AB", report.Info.SerialNumber)
	assert.NotNil(m.State().Info)

	_, err = m.Handle(solax_modbus.Message{Function: solax_modbus.FUNC_STATUS_REPORT, Data: make([]byte, 10)})
	assert.True(errors.Is(err, solax_modbus.ErrInvalidResponseSize))

	_, err = m.Handle(solax_modbus.Message{Function: 0x99})
	assert.True(errors.Is(err, ErrUnexpectedFunction))
}

func TestResolveAnnouncement(t *testing.T) {

	require := require.New(t)

	sn := testSerial(t)
	m := NewInverterMonitor("inv", 0x0B, sn, solax_modbus.X1Model)
	reg := NewBusRegistry[solax_modbus.Message, InverterReport]("inverter")
	require.NoError(reg.Register(m.Device(), m))

	dev, err := ResolveAnnouncement(reg, sn, false)
	require.NoError(err)
	require.Equal(uint8(0x0B), dev.Address)
	require.Equal(domain.DEVICE_KIND_INVERTER, dev.Kind)

	other := sn
	other[13] = 0x00
	_, err = ResolveAnnouncement(reg, other, false)
	require.True(errors.Is(err, ErrSerialMismatch))

	dev, err = ResolveAnnouncement(reg, other, true)
	require.NoError(err)
	require.Equal("inv", dev.Id)
}
