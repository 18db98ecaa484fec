package solax_modbus

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeX1MiniCapturedStatus(t *testing.T) {

	require := require.New(t)

	msg, err := DecodeMessage(X1MiniG2StatusReport)
	require.NoError(err)

	st, err := X1MiniModel.DecodeStatus(msg.Data)
	require.NoError(err)
	require.Equal(float64(33), st.Temperature)
	require.InDelta(0.2, st.EnergyToday, 1e-9)
	require.InDelta(238.9, st.ACVoltage, 1e-9)
	require.InDelta(49.92, st.ACFrequency, 1e-9)
	require.Equal(float64(555), st.ACPower)
	require.NotNil(st.EnergyTotal)
	require.InDelta(2398.3, *st.EnergyTotal, 1e-9)
	require.NotNil(st.RuntimeTotal)
	require.Equal(float64(4176), *st.RuntimeTotal)
	require.Equal(2, st.Mode)
	require.Equal("Normal", st.ModeName)
	require.Equal(uint32(0), st.ErrorBits)
	require.Equal("", st.Errors)
	require.Nil(st.CTGridPower)
}

func TestDecodeX1MiniSyntheticStatus(t *testing.T) {

	require := require.New(t)

	st, err := X1MiniModel.DecodeStatus(TestStatusPayload(56, 6, 800, 0x00000005))
	require.NoError(err)
	require.Equal(float64(-2), st.Temperature)
	require.Equal("Self Test", st.ModeName)
	require.Equal("TZ Protect Fault;Grid Voltage Fault", st.Errors)
	require.NotNil(st.CTGridPower)
	require.Equal(float64(-250), *st.CTGridPower)
}

func TestDecodeStatusSkipsZeroTotals(t *testing.T) {

	assert := assert.New(t)

	data := TestStatusPayload(52, 2, 100, 0)
	for i := 22; i < 30; i++ {
		data[i] = 0
	}
	st, err := X1MiniModel.DecodeStatus(data)
	assert.NoError(err)
	assert.Nil(st.EnergyTotal)
	assert.Nil(st.RuntimeTotal)

	st, err = X1Model.DecodeStatus(data)
	assert.NoError(err)
	assert.NotNil(st.EnergyTotal)
	assert.Equal(float64(0), *st.EnergyTotal)
}

func TestX1ModeNames(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("Idle", X1Model.ModeName(9))
	assert.Equal("Unknown", X1Model.ModeName(10))
	assert.Equal("Unknown", X1MiniModel.ModeName(7))
	assert.Equal("Offline", X1MiniModel.ModeName(MODE_OFFLINE))
	assert.Equal("Error Bit 31", X1Model.ErrorText(0x80000000))
}

func TestDecodeStatusInvalidSize(t *testing.T) {

	assert := assert.New(t)

	_, err := X1Model.DecodeStatus(make([]byte, 50))
	assert.True(errors.Is(err, ErrInvalidResponseSize))

	_, err = X1MiniModel.DecodeStatus(make([]byte, 51))
	assert.True(errors.Is(err, ErrInvalidResponseSize))
}

func TestInverterModelByName(t *testing.T) {

	assert := assert.New(t)

	m, err := InverterModelByName("x1")
	assert.NoError(err)
	assert.Equal(MODEL_X1, m.Name)

	m, err = InverterModelByName("")
	assert.NoError(err)
	assert.Equal(MODEL_X1_MINI, m.Name)

	_, err = InverterModelByName("x3")
	assert.Error(err)
}

func TestDecodeDeviceInfo(t *testing.T) {

	require := require.New(t)

	info, err := DecodeDeviceInfo(TestDeviceInfoPayload("XM1234567890AB"))
	require.NoError(err)
	require.Equal(uint8(1), info.DeviceType)
	require.Equal("  1000", info.RatedPower)
	require.Equal("1.10", info.FirmwareVersion)
	require.Equal("X1-Mini", info.ModuleName)
	require.Equal("SolaX", info.Manufacturer)
	require.Equal("XM1234567890AB", info.SerialNumber)
	require.Equal("360", info.RatedBusVoltage)

	_, err = DecodeDeviceInfo(make([]byte, 57))
	require.True(errors.Is(err, ErrInvalidResponseSize))
}

func TestDecodeSettings(t *testing.T) {

	require := require.New(t)

	data := make([]byte, SETTINGS_SIZE)
	data[0], data[1] = 0x04, 0xB0 // 1200 => 120.0 V
	data[26] = 3
	data[66], data[67] = 0x00, 0x64

	settings, err := DecodeSettings(data)
	require.NoError(err)
	require.InDelta(120.0, settings.PVStartVoltage, 1e-9)
	require.Equal(uint8(3), settings.PowerFactorMode)
	require.Equal(uint16(100), settings.FreqActivePowerDelayMillis)

	_, err = DecodeSettings(data[:60])
	require.Error(err)
}

func TestOfflineInverterStatus(t *testing.T) {

	st := OfflineInverterStatus()
	assert.Equal(t, MODE_OFFLINE, st.Mode)
	assert.Equal(t, "Offline", st.ModeName)
	assert.True(t, math.IsNaN(st.ACVoltage))
	assert.Equal(t, float64(0), st.ACPower)
}
