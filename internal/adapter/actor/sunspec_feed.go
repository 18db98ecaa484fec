package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// consecutive failed reads before the connection is recycled
	SUNSPEC_MAX_FAILURES = 3
)

type ACMeterReaderProvider func(gateway config.GatewayConfig) (sunspec_modbus.ACMeterModbusReader, error)

// SunSpecFeedActor polls a SunSpec grid meter and sends its power readings to the parent.
type SunSpecFeedActor struct {
	gateway    config.GatewayConfig
	behavior   actor.Behavior
	stash      *actorutil.Stash
	provider   ACMeterReaderProvider
	acMeter    sunspec_modbus.ACMeterModbusReader
	scheduler  *scheduler.TimerScheduler
	cancelPoll scheduler.CancelFunc
	failures   int
	lastRead   *time.Time
	logger     *zap.Logger
}

type pollMeter struct {
}

type meterReading struct {
	watts float64
	err   error
}

func SunSpecFeedActorId(gatewayId string) string {
	return fmt.Sprintf("%s_%s", domain.ACTOR_ID_SUNSPEC_FEED, gatewayId)
}

func NewSunSpecFeedActor(gateway config.GatewayConfig, provider ACMeterReaderProvider, logger *zap.Logger) *SunSpecFeedActor {
	act := &SunSpecFeedActor{
		gateway:  gateway,
		provider: provider,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(SunSpecFeedActorId(gateway.Id), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SunSpecFeedActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SunSpecFeedActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sunspec@starting started")
		acMeter, err := state.provider(state.gateway)
		if err != nil {
			panic(err)
		}
		if err := acMeter.Open(); err != nil {
			state.logger.Error("sunspec@starting could not open meter", zap.String("host", state.gateway.PowerSource.Host), zap.Error(err))
			panic(err)
		}
		state.acMeter = acMeter

		if info, err := acMeter.GetInfo(); err == nil {
			state.logger.Info("sunspec@starting meter found", zap.String("manufacturer", info.Manufacturer),
				zap.String("model", info.Model), zap.Uint16("sunspec_model", info.MeterModel))
		}

		state.scheduler = scheduler.NewTimerScheduler(ctx.ActorSystem().Root)
		interval := state.gateway.PowerSource.PollInterval
		state.cancelPoll = state.scheduler.SendRepeatedly(interval, interval, ctx.Self(), pollMeter{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("sunspec@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SunSpecFeedActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("sunspec@default: ActorHealthRequest")
		ctx.Respond(state.health())
	case pollMeter:
		actorutil.NewBackgroundTask(ctx, func() (*meterReading, error) {
			watts, err := state.acMeter.GetCurrentPowerFlowWatt()
			if err != nil {
				return nil, err
			}
			return &meterReading{watts: watts}, nil
		}).Recover(func(err error) meterReading {
			return meterReading{err: err}
		}).WithTimeout(state.gateway.PowerSource.Timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingMeter)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("sunspec@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SunSpecFeedActor) WaitingMeter(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case meterReading:
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
		if msg.err != nil {
			state.failures++
			state.logger.Warn("sunspec@waiting read failed", zap.Int("failures", state.failures), zap.Error(msg.err))
			if state.failures >= SUNSPEC_MAX_FAILURES {
				// let the supervisor reconnect
				panic(msg.err)
			}
			return
		}
		state.failures = 0
		now := time.Now()
		state.lastRead = &now
		watts := msg.watts
		if state.gateway.PowerSource.Invert {
			watts = -watts
		}
		state.logger.Debug("sunspec@waiting reading", zap.Float64("watts", watts))
		ctx.Send(ctx.Parent(), domain.PowerReadingEvent{
			GatewayId: state.gateway.Id,
			Watts:     watts,
		})
	case pollMeter:
		// previous read still running
	case domain.ActorHealthRequest:
		ctx.Respond(state.health())
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("sunspec@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SunSpecFeedActor) health() domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      SunSpecFeedActorId(state.gateway.Id),
		Healthy: state.failures == 0,
		State:   "polling",
	}
}

func (state *SunSpecFeedActor) stop() {
	if state.cancelPoll != nil {
		state.cancelPoll()
		state.cancelPoll = nil
	}
	if state.acMeter != nil {
		state.acMeter.Close()
	}
}

// SunSpecMeterProvider connects to the meter configured as the gateway power source.
func SunSpecMeterProvider(logger *zap.Logger) ACMeterReaderProvider {
	return func(gateway config.GatewayConfig) (sunspec_modbus.ACMeterModbusReader, error) {
		src := gateway.PowerSource
		return sunspec_modbus.CreateACMeterModbusReader(src.Host, src.Port, src.UnitId, src.Timeout,
			logger.With(zap.String("gateway", gateway.Id)), nil)
	}
}
