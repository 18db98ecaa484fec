package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	mqttActor    *actor.PID
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	bridge       domain.Device

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		bridge:      domain.BridgeDevice(config.MQTT.BaseTopic),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// wait for the MQTT actor to be connected
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}

		ctx.Send(state.mqttActor, state.discovery())

		send := actorutil.SelfSender(ctx)
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			if ev, ok := evt.(domain.InverterInfoEvent); ok {
				send(ev)
			}
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping:
		state.unsubscribe()
	case *actor.Restarting:
		state.unsubscribe()
	case domain.InverterInfoEvent:
		// republish the inverter device now that model and firmware are known
		for _, invCfg := range state.config.InverterBus.Inverters {
			if invCfg.Id != msg.InverterId {
				continue
			}
			info := msg.Info
			ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
				Sensors: state.inverterSensors(invCfg, &info),
			})
		}
	default:
		state.logger.Debug("hadiscovery@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) discovery() domain.PublishDiscoveryRequest {
	req := domain.PublishDiscoveryRequest{
		Sensors: domain.BridgeSensors(state.bridge),
	}

	for _, gwCfg := range state.config.MeterBus.Gateways {
		device := domain.GatewayDevice(state.bridge, gwCfg.Id, *gwCfg.Address)
		svc := gwCfg.ServiceConfig()
		sensors, switches, numbers := domain.GatewayEntities(device, gwCfg.Id, svc.FeatureEnabled,
			svc.DemandLimits, *gwCfg.ManualPowerDemand.InitialValue)
		req.Sensors = append(req.Sensors, sensors...)
		req.Switches = append(req.Switches, switches...)
		req.InputNumbers = append(req.InputNumbers, numbers...)
	}

	if state.config.InverterBus.Enabled {
		for _, invCfg := range state.config.InverterBus.Inverters {
			req.Sensors = append(req.Sensors, state.inverterSensors(invCfg, nil)...)
		}
	}
	return req
}

func (state *HADiscoveryActor) inverterSensors(invCfg config.InverterConfig, info *solax_modbus.InverterInfo) []domain.GenericSensor {
	sn, err := solax_modbus.ParseSerialNumber(invCfg.SerialNumber)
	if err != nil {
		state.logger.Error("hadiscovery invalid serial number", zap.String("inverter", invCfg.Id), zap.Error(err))
		return nil
	}
	device := domain.InverterDevice(state.bridge, invCfg.Id, sn, invCfg.Model, info)
	return domain.InverterEntities(device, invCfg.Id)
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
}
