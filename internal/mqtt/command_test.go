package mqtt

import (
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() domain.EntityIndex {
	return GatewayEntityIndex([]GatewayFeatures{
		{
			Id:      "grid",
			Enabled: func(domain.GatewayFeature) bool { return true },
		},
		{
			Id: "backup",
			Enabled: func(f domain.GatewayFeature) bool {
				return f == domain.FEATURE_EMERGENCY_POWER_OFF
			},
		},
	})
}

func TestGatewayEntityIndex(t *testing.T) {

	assert := assert.New(t)

	index := testIndex()

	assert.Len(index, 4)
	_, ok := index.Resolve("grid_power_demand")
	assert.False(ok, "sensors are not writable")
	_, ok = index.Resolve("backup_manual_mode")
	assert.False(ok, "disabled feature")
	ref, ok := index.Resolve("backup_emergency_power_off")
	assert.True(ok)
	assert.Equal("backup", ref.GatewayId)
}

func TestCommandToSwitchRequest(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	index := testIndex()

	for payload, expected := range map[string]bool{"on": true, "ON": true, "true": true, "1": true, "off": false, "false": false, "0": false} {
		req, err := CommandToRequest(index, ParsedMQTTCommand{DeviceId: "grid_manual_mode", Command: COMMAND_SWITCH, Payload: payload})
		require.NoError(err, payload)
		assert.Equal(domain.SetSwitchRequest{
			GatewayId: "grid",
			Feature:   domain.FEATURE_MANUAL_MODE,
			Value:     expected,
		}, req, payload)
	}

	_, err := CommandToRequest(index, ParsedMQTTCommand{DeviceId: "grid_manual_mode", Command: COMMAND_SWITCH, Payload: "maybe"})
	assert.ErrorIs(err, ErrInvalidPayload)
}

func TestCommandToNumberRequest(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	index := testIndex()

	req, err := CommandToRequest(index, ParsedMQTTCommand{DeviceId: "grid_manual_power_demand", Command: COMMAND_NUMBER, Payload: "-150"})
	require.NoError(err)
	assert.Equal(domain.SetNumberRequest{
		GatewayId: "grid",
		Feature:   domain.FEATURE_MANUAL_POWER_DEMAND,
		Value:     -150,
	}, req)
}

func TestCommandToRequestErrors(t *testing.T) {

	assert := assert.New(t)

	index := testIndex()

	_, err := CommandToRequest(index, ParsedMQTTCommand{DeviceId: "unknown_manual_mode", Command: COMMAND_SWITCH, Payload: "on"})
	assert.ErrorIs(err, ErrUnknownEntity)

	_, err = CommandToRequest(index, ParsedMQTTCommand{DeviceId: "grid_manual_mode", Command: COMMAND_NUMBER, Payload: "1"})
	assert.ErrorIs(err, ErrUnknownEntity, "kind mismatch")
}

func TestParsePowerPayload(t *testing.T) {

	assert := assert.New(t)

	value, err := ParsePowerPayload([]byte(" 1234.5\n"), false)
	assert.NoError(err)
	assert.Equal(1234.5, value)

	value, err = ParsePowerPayload([]byte("-300"), true)
	assert.NoError(err)
	assert.Equal(300.0, value)

	_, err = ParsePowerPayload([]byte("unavailable"), false)
	assert.ErrorIs(err, ErrInvalidPayload)
}
