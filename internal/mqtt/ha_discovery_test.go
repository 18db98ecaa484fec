package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := testClient()
	bridge := domain.BridgeDevice("solaxgw")
	device := domain.GatewayDevice(bridge, "grid", 1)
	sensors, switches, numbers := domain.GatewayEntities(device, "grid",
		func(domain.GatewayFeature) bool { return true },
		domain.NumberBounds{Min: 0, Max: 600, Step: 1}, 0)

	require.Len(switches, 2)
	require.Len(numbers, 1)

	var demand domain.GenericSensor
	for _, s := range sensors {
		if s.Id == "grid_power_demand" {
			demand = s
		}
	}
	msg := GenericSensorToHADiscoveryMessage(client, demand)
	assert.Equal("solaxgw/sensor/grid_power_demand/state", msg.StateTopic)
	assert.Equal("solaxgw/bridge/state", msg.AvTopic)
	assert.Equal("W", msg.UnitOfMeasurement)
	assert.Empty(msg.PayloadOn)
	assert.Equal("homeassistant/sensor/"+device.Id+"/grid_power_demand/config", client.HADiscoverySensorTopic(demand))

	sw := GenericSwitchToHADiscoveryMessage(client, switches[0])
	assert.Equal("solaxgw/switch/"+switches[0].Id+"/command", sw.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_ON, sw.PayloadOn)
	assert.Equal(bridge.Id, sw.Device.ViaDevice)

	num := GenericInputNumberToHADiscoveryMessage(client, numbers[0])
	raw, err := json.Marshal(num)
	require.NoError(err)
	// a zero minimum must still be sent
	assert.Contains(string(raw), `"min":0`)
	assert.Contains(string(raw), `"max":600`)
}

func TestBridgeDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	bridge := domain.BridgeSensors(domain.BridgeDevice("solaxgw"))[0]

	msg := GenericSensorToHADiscoveryMessage(client, bridge)
	assert.Equal(client.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Equal(MQTT_PAYLOAD_OFFLINE, msg.PayloadOff)
	assert.Equal("homeassistant/binary_sensor/"+bridge.Device.Id+"/bridge/config", client.HADiscoverySensorTopic(bridge))
}
