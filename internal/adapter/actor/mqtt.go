package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/mqtt"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	entities       domain.EntityIndex
	// power topic => gateways fed by it
	powerTopics map[string][]config.GatewayConfig
	logger      *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Error error
}

type parsedCommand struct {
	command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		entities:    entityIndex(config),
		powerTopics: powerTopics(config),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		send := actorutil.SelfSender(ctx)

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			send(MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		send := actorutil.SelfSender(ctx)

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to eventStream
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.SensorUpdateEvent); ok {
				send(domain.PublishSensorUpdateRequest{Event: ev})
			}
		})

		// subscribe to MQTT command and power topics
		extraTopics := make([]string, 0, len(state.powerTopics))
		for topic := range state.powerTopics {
			extraTopics = append(extraTopics, topic)
		}
		onPower := state.powerReadingHandler(ctx.ActorSystem().Root, ctx.Parent())
		state.client.SubscribeToCommandTopics(extraTopics, func(c pahomqtt.Client, m pahomqtt.Message) {
			if _, ok := state.powerTopics[m.Topic()]; ok {
				// readings skip this mailbox, it is stashed while a publish is in flight
				onPower(c, m)
				return
			}
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				send(parsedCommand{command: cmd})
			}
		}, func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed", zap.Int("power_topics", len(state.powerTopics)))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.client.IsConnected(),
			State:   "idle",
		})
	case parsedCommand:
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.command))
		req, err := mqtt.CommandToRequest(state.entities, *msg.command)
		if err != nil {
			state.logger.Warn("mqtt@default discarding command", zap.Any("command", msg.command), zap.Error(err))
			return
		}
		// route request to parent, the response comes back to this actor
		switch r := req.(type) {
		case domain.SetSwitchRequest:
			r.ReplyToRef = domain.NewActorRef(ctx.Self())
			ctx.Send(ctx.Parent(), r)
		case domain.SetNumberRequest:
			r.ReplyToRef = domain.NewActorRef(ctx.Self())
			ctx.Send(ctx.Parent(), r)
		}
	case domain.SetSwitchResponse:
		if msg.HasResponseError() {
			state.logger.Warn("mqtt@default switch command rejected", zap.Error(msg.ResponseError))
		}
	case domain.SetNumberResponse:
		if msg.HasResponseError() {
			state.logger.Warn("mqtt@default number command rejected", zap.Error(msg.ResponseError))
		}
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(msg.Sensors, msg.Switches, msg.InputNumbers)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		if msg.ReplyToRef != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// powerReadingHandler parses power samples on the subscription goroutine and sends them to parent.
func (state *MQTTActor) powerReadingHandler(root *actor.RootContext, parent *actor.PID) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, m pahomqtt.Message) {
		for _, gwCfg := range state.powerTopics[m.Topic()] {
			watts, err := mqtt.ParsePowerPayload(m.Payload(), gwCfg.PowerSource.Invert)
			if err != nil {
				state.logger.Warn("mqtt@subscription invalid power reading", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			root.Send(parent, domain.PowerReadingEvent{
				GatewayId: gwCfg.Id,
				Watts:     watts,
			})
		}
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SwitchStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool) {
	msg := state.event2MQTTMessage(event)
	if msg != nil {
		state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
		send := actorutil.SelfSender(ctx)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
			send(publishResult{Error: err})
		}, 5*time.Second)
		state.behavior.BecomeStacked(state.EventPublishResultReceive)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a sensor update", zap.Error(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor,
	switches []domain.GenericSwitch, inputNumbers []domain.GenericInputNumber) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := state.client.HADiscoverySensorTopic(sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range switches {
		msg := mqtt.GenericSwitchToHADiscoveryMessage(state.client, switches[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := state.client.HADiscoverySwitchTopic(switches[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range inputNumbers {
		msg := mqtt.GenericInputNumberToHADiscoveryMessage(state.client, inputNumbers[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := state.client.HADiscoveryInputNumberTopic(inputNumbers[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func entityIndex(cfg *config.Config) domain.EntityIndex {
	gateways := make([]mqtt.GatewayFeatures, 0, len(cfg.MeterBus.Gateways))
	for _, gwCfg := range cfg.MeterBus.Gateways {
		gateways = append(gateways, mqtt.GatewayFeatures{
			Id:      gwCfg.Id,
			Enabled: gwCfg.ServiceConfig().FeatureEnabled,
		})
	}
	return mqtt.GatewayEntityIndex(gateways)
}

func powerTopics(cfg *config.Config) map[string][]config.GatewayConfig {
	topics := make(map[string][]config.GatewayConfig)
	for _, gwCfg := range cfg.MeterBus.Gateways {
		if gwCfg.PowerSource.Type == config.POWER_SOURCE_MQTT {
			topics[gwCfg.PowerSource.Topic] = append(topics[gwCfg.PowerSource.Topic], gwCfg)
		}
	}
	return topics
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

// Dummy actor, records what would be published
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		entities:    entityIndex(config),
		powerTopics: powerTopics(config),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case parsedCommand, domain.SetSwitchResponse, domain.SetNumberResponse:
		state.DefaultReceive(ctx)
	case domain.PublishSensorUpdateRequest:
		if raw := state.event2MQTTMessage(msg.Event); raw != nil {
			state.logger.Sugar().Debugf("mqtt@dummy: sensor publish %s => %s", raw.topic, raw.message)
		}
		if msg.ReplyToRef != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@dummy PublishHADiscovery", zap.Int("sensors", len(msg.Sensors)),
			zap.Int("switches", len(msg.Switches)), zap.Int("numbers", len(msg.InputNumbers)))
		if msg.ReplyToRef != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{})
		}
	}
}
