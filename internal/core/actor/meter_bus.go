package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/events"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/internal/core/service"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

var ErrUnknownGateway = errors.New("unknown gateway")

// MeterBusActor owns one meter bus. Every poll, reading and control change of the gateways on
// the bus is handled by this actor, one message at a time.
type MeterBusActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	link        port.FrameLink
	store       port.EntityStateStore
	eventStream *eventstream.EventStream

	registry  *service.BusRegistry[service.MeterPoll, service.MeterReply]
	gateways  map[string]*service.MeterGateway
	lastLabel map[string]string

	logger *zap.Logger
}

type frameReceived struct {
	frame []byte
}

type linkFailed struct {
	err error
}

func NewMeterBusActor(config *config.Config, link port.FrameLink, store port.EntityStateStore, eventStream *eventstream.EventStream, logger *zap.Logger) *MeterBusActor {
	act := &MeterBusActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		link:        link,
		store:       store,
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_METER_BUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterBusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterBusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meterbus@starting started")

		if err := state.buildGateways(); err != nil {
			state.logger.Error("meterbus@starting invalid gateway configuration", zap.Error(err))
			panic(err)
		}

		send := actorutil.SelfSender(ctx)
		err := state.link.Open(func(frame []byte) {
			send(frameReceived{frame: frame})
		}, func(err error) {
			send(linkFailed{err: err})
		})
		if err != nil {
			state.logger.Error("meterbus@starting could not open serial link", zap.Error(err))
			panic(err)
		}

		// publish the restored controls and the initial demand
		now := time.Now()
		for _, gw := range state.gateways {
			state.publishControls(gw)
			state.publishEvaluation(gw, gw.OnPoll(now), true)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("meterbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterBusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("meterbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_BUS,
			Healthy: state.link.IsOpen(),
			State:   "polling",
		})
	case frameReceived:
		state.handleFrame(msg.frame)
	case linkFailed:
		// let the supervisor reopen the port
		state.logger.Error("meterbus@default serial link failed", zap.Error(msg.err))
		panic(msg.err)
	case domain.PowerReadingEvent:
		gw, ok := state.gateways[msg.GatewayId]
		if !ok {
			state.logger.Warn("meterbus@default reading for unknown gateway", zap.String("gateway", msg.GatewayId))
			return
		}
		if err := gw.OnReading(msg.Watts, time.Now()); err != nil {
			state.logger.Warn("meterbus@default discarding reading", zap.String("gateway", msg.GatewayId), zap.Error(err))
		}
	case domain.SetSwitchRequest:
		state.logger.Debug("meterbus@default SetSwitchRequest", zap.Any("request", msg))
		err := state.updateControls(msg.GatewayId, func(gw *service.MeterGateway) error {
			return gw.SetSwitch(msg.Feature, msg.Value)
		})
		actorutil.ForRequest(msg).Respond(ctx, domain.SetSwitchResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case domain.SetNumberRequest:
		state.logger.Debug("meterbus@default SetNumberRequest", zap.Any("request", msg))
		err := state.updateControls(msg.GatewayId, func(gw *service.MeterGateway) error {
			return gw.SetNumber(msg.Feature, msg.Value)
		})
		actorutil.ForRequest(msg).Respond(ctx, domain.SetNumberResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case domain.GetGatewayStateRequest:
		resp := domain.GetGatewayStateResponse{}
		if gw, ok := state.gateways[msg.GatewayId]; ok {
			snap := gw.Snapshot(time.Now())
			resp.Snapshot = &snap
		} else {
			resp.ResponseError = fmt.Errorf("%w: %s", ErrUnknownGateway, msg.GatewayId)
		}
		actorutil.ForRequest(msg).Respond(ctx, resp)
	case domain.ListGatewaysRequest:
		now := time.Now()
		resp := domain.ListGatewaysResponse{}
		for _, dev := range state.registry.Devices() {
			resp.Gateways = append(resp.Gateways, state.gateways[dev.Id].Snapshot(now))
		}
		actorutil.ForRequest(msg).Respond(ctx, resp)
	default:
		state.logger.Debug("meterbus@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterBusActor) buildGateways() error {
	state.registry = service.NewBusRegistry[service.MeterPoll, service.MeterReply](domain.ACTOR_ID_METER_BUS)
	state.gateways = make(map[string]*service.MeterGateway)
	state.lastLabel = make(map[string]string)

	for _, gwCfg := range state.config.MeterBus.Gateways {
		cfg := gwCfg.ServiceConfig()
		controls, err := service.RestoreControls(state.store, cfg, gwCfg.RestoreConfig())
		if err != nil {
			state.logger.Warn("meterbus@starting could not restore state, using defaults", zap.String("gateway", cfg.Id), zap.Error(err))
		}
		gw, err := service.NewMeterGateway(cfg, controls)
		if err != nil {
			return err
		}
		if err := state.registry.Register(gw.Device(), gw); err != nil {
			return err
		}
		state.gateways[cfg.Id] = gw
		state.logger.Info("meterbus@starting gateway registered", zap.String("gateway", cfg.Id),
			zap.Uint8("address", cfg.Address), zap.Any("controls", controls))
	}
	return nil
}

func (state *MeterBusActor) handleFrame(frame []byte) {
	req, err := solax_modbus.DecodeMeterRequest(frame)
	if err != nil {
		state.logger.Warn("meterbus@default invalid request", zap.Binary("frame", frame), zap.Error(err))
		return
	}

	reply, err := state.registry.Dispatch(req.Address, service.MeterPoll{Request: *req, At: time.Now()})
	switch {
	case errors.Is(err, service.ErrUnknownAddress):
		// another device on the bus may own the address
		state.logger.Debug("meterbus@default poll for unknown address", zap.Uint8("address", req.Address))
		return
	case errors.Is(err, solax_modbus.ErrUnhandledRegister):
		state.logger.Warn("meterbus@default unhandled register", zap.Uint16("register", req.Register))
		state.write(solax_modbus.EncodeMeterException(*req, mbserver.IllegalDataAddress))
		return
	case err != nil:
		state.logger.Error("meterbus@default poll failed", zap.Error(err))
		return
	}

	state.write(reply.Frame)

	if reply.PowerRequest {
		gw := state.gateways[state.deviceId(req.Address)]
		state.publishEvaluation(gw, reply.Evaluation, false)
	}
}

func (state *MeterBusActor) deviceId(address uint8) string {
	dev, _ := state.registry.Lookup(address)
	return dev.Id
}

func (state *MeterBusActor) write(frame []byte) {
	if err := state.link.Write(frame); err != nil {
		state.logger.Error("meterbus@default could not write reply", zap.Error(err))
	}
}

func (state *MeterBusActor) updateControls(gatewayId string, update func(gw *service.MeterGateway) error) error {
	gw, ok := state.gateways[gatewayId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayId)
	}
	if err := update(gw); err != nil {
		return err
	}
	if err := service.PersistControls(state.store, gw.Config(), gw.Controls()); err != nil {
		state.logger.Error("meterbus@default could not persist controls", zap.String("gateway", gatewayId), zap.Error(err))
	}
	state.publishControls(gw)
	state.publishEvaluation(gw, gw.OnPoll(time.Now()), true)
	return nil
}

func (state *MeterBusActor) publishControls(gw *service.MeterGateway) {
	for _, ev := range events.ControlsToUpdateEvents(gw.Id(), gw.Config().FeatureEnabled, gw.Controls()) {
		state.eventStream.Publish(ev)
	}
}

// publishEvaluation publishes the demand sensor on every call and the operation mode only when its label changed.
func (state *MeterBusActor) publishEvaluation(gw *service.MeterGateway, eval domain.Evaluation, force bool) {
	evs := events.EvaluationToUpdateEvents(gw.Id(), eval)
	label := eval.Label()
	for _, ev := range evs {
		if _, isMode := ev.(domain.TextSensorUpdateEvent); isMode && !force && state.lastLabel[gw.Id()] == label {
			continue
		}
		state.eventStream.Publish(ev)
	}
	state.lastLabel[gw.Id()] = label

	now := time.Now()
	state.eventStream.Publish(domain.GatewayPolledEvent{
		Snapshot: gw.Snapshot(now),
		At:       now,
	})
}

func (state *MeterBusActor) stop() {
	state.logger.Debug("meterbus: close serial link")
	if state.link != nil {
		state.link.Close()
	}
}
