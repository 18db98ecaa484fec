package mqtt

import (
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	topic   string
	payload []byte
}

func (m testMessage) Duplicate() bool   { return false }
func (m testMessage) Qos() byte         { return 1 }
func (m testMessage) Retained() bool    { return false }
func (m testMessage) Topic() string     { return m.topic }
func (m testMessage) MessageID() uint16 { return 0 }
func (m testMessage) Payload() []byte   { return m.payload }
func (m testMessage) Ack()              {}

func testClient() *MQTTClient {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "solaxgw",
			HADiscoveryTopic: "homeassistant",
		},
	}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal("my_device", matches[0][1], "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	r := switchCommandExtractor("loremTopic")

	assert.Empty(r.FindAllStringSubmatch("loremTopic/switch/my_device/state", 1), "state topic")
	assert.Empty(r.FindAllStringSubmatch("other/loremTopic/switch/my_device/command", 1), "foreign prefix")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "lorem.Topic"
	r := inputNumberCommandExtractor(baseTopic)

	matches := r.FindAllStringSubmatch("lorem.Topic/number/number_name/set", 1)
	assert.Equal("number_name", matches[0][1], "number_id extract")

	// the base topic is matched literally
	assert.Empty(r.FindAllStringSubmatch("loremXTopic/number/number_name/set", 1))
}

func TestParseMQTTCommand(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := testClient()

	cmd, err := client.ParseMQTTCommand(testMessage{topic: "solaxgw/switch/grid_manual_mode/command", payload: []byte("on")})
	require.NoError(err)
	assert.Equal(ParsedMQTTCommand{DeviceId: "grid_manual_mode", Command: COMMAND_SWITCH, Payload: "on"}, *cmd)

	cmd, err = client.ParseMQTTCommand(testMessage{topic: "solaxgw/number/grid_manual_power_demand/set", payload: []byte("250.5")})
	require.NoError(err)
	assert.Equal(ParsedMQTTCommand{DeviceId: "grid_manual_power_demand", Command: COMMAND_NUMBER, Payload: "250.5"}, *cmd)

	_, err = client.ParseMQTTCommand(testMessage{topic: "solaxgw/number/grid_manual_power_demand/set", payload: []byte("lots")})
	assert.Error(err, "number payload must be numeric")

	_, err = client.ParseMQTTCommand(testMessage{topic: "solaxgw/sensor/grid_power_demand/state", payload: []byte("1")})
	assert.Error(err, "state topics are not commands")
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	client := testClient()

	assert.Equal("solaxgw/bridge/state", client.BridgeStateTopic())
	assert.Equal("solaxgw/sensor/grid_power_demand/state", client.SensorStateTopic("grid_power_demand"))
	assert.Equal("solaxgw/switch/grid_manual_mode/state", client.SwitchStateTopic("grid_manual_mode"))
	assert.Equal("solaxgw/number/grid_manual_power_demand/set", client.InputNumberCommandTopic("grid_manual_power_demand"))
	assert.ElementsMatch([]string{"solaxgw/switch/+/command", "solaxgw/number/+/set"}, client.commandTopics())
}
