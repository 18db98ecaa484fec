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
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var ErrUnknownInverter = errors.New("unknown inverter")

// InverterBusActor polls the inverters attached to one AA55 COM bus.
type InverterBusActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	link        port.FrameLink
	eventStream *eventstream.EventStream
	scheduler   *scheduler.TimerScheduler
	cancelTicks []scheduler.CancelFunc

	registry *service.BusRegistry[solax_modbus.Message, service.InverterReport]
	monitors map[string]*service.InverterMonitor

	logger *zap.Logger
}

type inverterTick struct {
	inverterId string
}

func NewInverterBusActor(config *config.Config, link port.FrameLink, eventStream *eventstream.EventStream, logger *zap.Logger) *InverterBusActor {
	act := &InverterBusActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		link:        link,
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_INVERTER_BUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *InverterBusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InverterBusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("inverterbus@starting started")

		if err := state.buildMonitors(); err != nil {
			state.logger.Error("inverterbus@starting invalid inverter configuration", zap.Error(err))
			panic(err)
		}

		send := actorutil.SelfSender(ctx)
		err := state.link.Open(func(frame []byte) {
			send(frameReceived{frame: frame})
		}, func(err error) {
			send(linkFailed{err: err})
		})
		if err != nil {
			state.logger.Error("inverterbus@starting could not open serial link", zap.Error(err))
			panic(err)
		}

		// first tick right away, the monitors start by rediscovering
		state.scheduler = scheduler.NewTimerScheduler(ctx.ActorSystem().Root)
		for _, invCfg := range state.config.InverterBus.Inverters {
			cancel := state.scheduler.SendRepeatedly(10*time.Millisecond, invCfg.UpdateInterval, ctx.Self(), inverterTick{inverterId: invCfg.Id})
			state.cancelTicks = append(state.cancelTicks, cancel)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("inverterbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *InverterBusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("inverterbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INVERTER_BUS,
			Healthy: state.link.IsOpen(),
			State:   "polling",
		})
	case inverterTick:
		state.update(msg.inverterId)
	case frameReceived:
		state.handleFrame(msg.frame)
	case linkFailed:
		state.logger.Error("inverterbus@default serial link failed", zap.Error(msg.err))
		panic(msg.err)
	case domain.GetInverterStateRequest:
		mon, ok := state.monitors[msg.InverterId]
		if !ok {
			actorutil.ForRequest(msg).Respond(ctx, domain.GetInverterStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("%w: %s", ErrUnknownInverter, msg.InverterId),
				},
			})
			return
		}
		actorutil.ForRequest(msg).Respond(ctx, mon.State())
	case domain.QueryInverterSettingsRequest:
		resp := domain.QueryInverterSettingsResponse{}
		if mon, ok := state.monitors[msg.InverterId]; ok {
			state.send(solax_modbus.QuerySettingsMessage(mon.Address()))
		} else {
			resp.ResponseError = fmt.Errorf("%w: %s", ErrUnknownInverter, msg.InverterId)
		}
		actorutil.ForRequest(msg).Respond(ctx, resp)
	default:
		state.logger.Debug("inverterbus@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InverterBusActor) buildMonitors() error {
	state.registry = service.NewBusRegistry[solax_modbus.Message, service.InverterReport](domain.ACTOR_ID_INVERTER_BUS)
	state.monitors = make(map[string]*service.InverterMonitor)

	for _, invCfg := range state.config.InverterBus.Inverters {
		sn, err := solax_modbus.ParseSerialNumber(invCfg.SerialNumber)
		if err != nil {
			return fmt.Errorf("inverter %s: %w", invCfg.Id, err)
		}
		model, err := solax_modbus.InverterModelByName(invCfg.Model)
		if err != nil {
			return fmt.Errorf("inverter %s: %w", invCfg.Id, err)
		}
		mon := service.NewInverterMonitor(invCfg.Id, invCfg.Address, sn, model)
		if err := state.registry.Register(mon.Device(), mon); err != nil {
			return err
		}
		state.monitors[invCfg.Id] = mon
	}
	return nil
}

func (state *InverterBusActor) update(inverterId string) {
	mon, ok := state.monitors[inverterId]
	if !ok {
		return
	}
	action, offline := mon.OnUpdate()
	switch action {
	case service.UPDATE_REDISCOVER:
		state.logger.Info("inverterbus@default inverter not answering, rediscovering", zap.String("inverter", inverterId))
		state.publishStatus(mon, false, offline)
		state.send(solax_modbus.DiscoverDevicesMessage())
	case service.UPDATE_QUERY_STATUS:
		state.send(solax_modbus.QueryStatusMessage(mon.Address()))
	}
}

func (state *InverterBusActor) handleFrame(frame []byte) {
	msg, err := solax_modbus.DecodeMessage(frame)
	if err != nil {
		state.logger.Warn("inverterbus@default invalid frame", zap.Binary("frame", frame), zap.Error(err))
		return
	}

	if msg.IsSerialAnnouncement() {
		state.assignAddress(msg)
		return
	}
	if !msg.IsReport() {
		state.logger.Debug("inverterbus@default ignoring frame", zap.Stringer("message", msg))
		return
	}

	report, err := state.registry.Dispatch(msg.DeviceAddress(), *msg)
	if err != nil {
		state.logger.Warn("inverterbus@default report dropped", zap.Uint8("address", msg.DeviceAddress()), zap.Error(err))
		return
	}
	dev, _ := state.registry.Lookup(msg.DeviceAddress())
	mon := state.monitors[dev.Id]

	switch {
	case report.Status != nil:
		state.publishStatus(mon, true, report.Status)
	case report.Info != nil:
		state.logger.Info("inverterbus@default device info", zap.String("inverter", mon.Id()), zap.Any("info", report.Info))
		state.eventStream.Publish(domain.InverterInfoEvent{InverterId: mon.Id(), Info: *report.Info})
	case report.Settings != nil:
		state.logger.Info("inverterbus@default settings", zap.String("inverter", mon.Id()), zap.Any("settings", report.Settings))
	}
}

func (state *InverterBusActor) assignAddress(msg *solax_modbus.Message) {
	sn, err := solax_modbus.SerialNumberFromBytes(msg.Data)
	if err != nil {
		state.logger.Warn("inverterbus@default invalid announcement", zap.Error(err))
		return
	}
	dev, err := service.ResolveAnnouncement(state.registry, sn, state.config.InverterBus.AdoptAnySerial)
	if err != nil {
		state.logger.Warn("inverterbus@default inverter association failed", zap.String("serial", sn.String()), zap.Error(err))
		return
	}
	state.logger.Info("inverterbus@default registering inverter", zap.String("inverter", dev.Id),
		zap.String("serial", sn.String()), zap.Uint8("address", dev.Address))
	state.send(solax_modbus.RegisterAddressMessage(sn, dev.Address))
	state.send(solax_modbus.QueryDeviceInfoMessage(dev.Address))
}

func (state *InverterBusActor) publishStatus(mon *service.InverterMonitor, online bool, st *solax_modbus.InverterStatus) {
	for _, ev := range events.InverterStatusToUpdateEvents(mon.Id(), online, st) {
		state.eventStream.Publish(ev)
	}
	state.eventStream.Publish(domain.InverterUpdatedEvent{
		InverterId: mon.Id(),
		Address:    mon.Address(),
		Online:     online,
		ACPower:    st.ACPower,
		Mode:       st.Mode,
		At:         time.Now(),
	})
}

func (state *InverterBusActor) send(msg solax_modbus.Message) {
	state.logger.Debug("inverterbus@default send", zap.Stringer("message", msg))
	if err := state.link.Write(msg.Bytes()); err != nil {
		state.logger.Error("inverterbus@default could not write frame", zap.Error(err))
	}
}

func (state *InverterBusActor) stop() {
	for _, cancel := range state.cancelTicks {
		cancel()
	}
	state.cancelTicks = nil
	if state.link != nil {
		state.link.Close()
	}
}
