package actor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/solaxgw2mqtt/internal/adapter/actor"
	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	. "github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

var ErrInverterBusDisabled = errors.New("inverter bus is disabled")

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// FrameLinkProvider returns a new, closed, serial link for the given bus actor id.
type FrameLinkProvider func(bus string) port.FrameLink

type MasterDependencies struct {
	MQTTActorProvider MQTTActorProvider
	LinkProvider      FrameLinkProvider
	ACMeterProvider   adactor.ACMeterReaderProvider
	Store             port.EntityStateStore
	TelemetrySinks    []port.TelemetrySink
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash
	deps     MasterDependencies

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	mqttActor          *actor.PID
	meterBusActor      *actor.PID
	inverterBusActor   *actor.PID
	// children answering health requests, by actor id
	monitored map[string]*actor.PID
	logger    *zap.Logger
}

type healthCheckResult struct {
	unhealthy      map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, deps MasterDependencies, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:      config,
		deps:        deps,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream: &eventstream.EventStream{},
		monitored:   make(map[string]*actor.PID),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// the MQTT actor goes first, every other child publishes through it
		mqttActorPID, err := state.startChild(ctx, domain.ACTOR_ID_MQTT, backoffSupervisor(), func() actor.Actor {
			return state.deps.MQTTActorProvider(state.eventStream)
		})
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		meterBusPID, err := state.startChild(ctx, domain.ACTOR_ID_METER_BUS, backoffSupervisor(), func() actor.Actor {
			return NewMeterBusActor(&state.config, state.deps.LinkProvider(domain.ACTOR_ID_METER_BUS), state.deps.Store, state.eventStream, state.logger)
		})
		if err != nil {
			panic(err)
		}
		state.meterBusActor = meterBusPID

		if state.config.InverterBus.Enabled {
			inverterBusPID, err := state.startChild(ctx, domain.ACTOR_ID_INVERTER_BUS, backoffSupervisor(), func() actor.Actor {
				return NewInverterBusActor(&state.config, state.deps.LinkProvider(domain.ACTOR_ID_INVERTER_BUS), state.eventStream, state.logger)
			})
			if err != nil {
				panic(err)
			}
			state.inverterBusActor = inverterBusPID
		}

		for _, gwCfg := range state.config.MeterBus.Gateways {
			if gwCfg.PowerSource.Type != config.POWER_SOURCE_SUNSPEC {
				continue
			}
			gateway := gwCfg
			_, err := state.startChild(ctx, adactor.SunSpecFeedActorId(gateway.Id), backoffSupervisor(), func() actor.Actor {
				return adactor.NewSunSpecFeedActor(gateway, state.deps.ACMeterProvider, state.logger)
			})
			if err != nil {
				panic(err)
			}
		}

		if len(state.deps.TelemetrySinks) > 0 {
			_, err := state.startChild(ctx, domain.ACTOR_ID_TELEMETRY, restartSupervisor(state.logger), func() actor.Actor {
				return NewTelemetryActor(state.deps.TelemetrySinks, state.eventStream, state.logger)
			})
			if err != nil {
				panic(err)
			}
		}

		if state.config.ModbusMirror.Enabled {
			_, err := state.startChild(ctx, domain.ACTOR_ID_MODBUS_MIRROR, backoffSupervisor(), func() actor.Actor {
				return adactor.NewModbusMirrorActor(state.config.ModbusMirror, state.eventStream, state.logger)
			})
			if err != nil {
				panic(err)
			}
		}

		// discovery is a one shot publisher, not monitored
		if state.config.MQTT.HADiscoveryEnable {
			props := actor.PropsFromProducer(func() actor.Actor {
				return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
			}, actor.WithSupervisor(restartSupervisor(state.logger)))
			if _, err := ctx.SpawnNamed(props, domain.ACTOR_ID_HA_DISCOVERY); err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.monitored)
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.monitored {
			childId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.PowerReadingEvent:
		ctx.Send(state.meterBusActor, msg)
	case domain.SetSwitchRequest, domain.SetNumberRequest, domain.GetGatewayStateRequest, domain.ListGatewaysRequest:
		ctx.Forward(state.meterBusActor)
	case domain.GetInverterStateRequest:
		if state.inverterBusActor == nil {
			ForRequest(msg).Respond(ctx, domain.GetInverterStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: ErrInverterBusDisabled},
			})
			return
		}
		ctx.Forward(state.inverterBusActor)
	case domain.QueryInverterSettingsRequest:
		if state.inverterBusActor == nil {
			ForRequest(msg).Respond(ctx, domain.QueryInverterSettingsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: ErrInverterBusDisabled},
			})
			return
		}
		ctx.Forward(state.inverterBusActor)
	case *actor.Terminated:
		// if the meter bus fails for good, terminate
		if msg.Who.Equal(state.meterBusActor) {
			state.logger.Error("master@default meter bus terminated")
			panic(errors.New("meter bus terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			delete(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.checksReceived >= len(state.monitored) {

			state.currentHealthCheck.respond(ctx)

			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startChild(ctx actor.Context, id string, supervisor actor.SupervisorStrategy, producer actor.Producer) (*actor.PID, error) {
	props := actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(props, id)
	if err != nil {
		return nil, err
	}
	state.monitored[id] = pid
	return pid, nil
}

// backoffSupervisor is used by the children that own a connection or a port.
func backoffSupervisor() actor.SupervisorStrategy {
	return actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
}

func restartSupervisor(logger *zap.Logger) actor.SupervisorStrategy {
	decider := func(reason interface{}) actor.Directive {
		logger.Warn("master: handling failure for child", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	return actor.NewOneForOneStrategy(1, 10*time.Second, decider)
}

func (state *healthCheckResult) reset(monitored map[string]*actor.PID) {
	state.unhealthy = make(map[string]bool, len(monitored))
	for id := range monitored {
		state.unhealthy[id] = true
	}
	state.checksReceived = 0
}

func (state *healthCheckResult) allHealthy() bool {
	return len(state.unhealthy) == 0
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if !resp.Healthy {
		ids := make([]string, 0, len(state.unhealthy))
		for id := range state.unhealthy {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		resp.State = "unhealthy: " + strings.Join(ids, ",")
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
