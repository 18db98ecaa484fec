package actor

import (
	"fmt"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// TelemetryActor records every gateway poll and inverter update into the configured sinks.
type TelemetryActor struct {
	behavior     actor.Behavior
	sinks        []port.TelemetrySink
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	failures     map[string]uint64
	logger       *zap.Logger
}

func NewTelemetryActor(sinks []port.TelemetrySink, eventStream *eventstream.EventStream, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		behavior:    actor.NewBehavior(),
		sinks:       sinks,
		eventStream: eventStream,
		failures:    make(map[string]uint64),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		names := make([]string, 0, len(state.sinks))
		for _, sink := range state.sinks {
			names = append(names, sink.Name())
		}
		state.logger.Info("telemetry@default started", zap.Strings("sinks", names))

		send := actorutil.SelfSender(ctx)
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			switch ev := evt.(type) {
			case domain.GatewayPolledEvent, domain.InverterUpdatedEvent:
				send(ev)
			}
		})
	case *actor.Restarting:
		state.unsubscribe()
	case *actor.Stopping:
		state.unsubscribe()
		for _, sink := range state.sinks {
			if err := sink.Close(); err != nil {
				state.logger.Warn("telemetry@default could not close sink", zap.String("sink", sink.Name()), zap.Error(err))
			}
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   fmt.Sprintf("%d sinks", len(state.sinks)),
		})
	case domain.GatewayPolledEvent:
		for _, sink := range state.sinks {
			state.record(sink, sink.GatewayPolled(msg))
		}
	case domain.InverterUpdatedEvent:
		for _, sink := range state.sinks {
			state.record(sink, sink.InverterUpdated(msg))
		}
	default:
		state.logger.Debug("telemetry@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// record logs the first failure of a sink and then every hundredth one.
func (state *TelemetryActor) record(sink port.TelemetrySink, err error) {
	if err == nil {
		return
	}
	n := state.failures[sink.Name()]
	state.failures[sink.Name()] = n + 1
	if n%100 == 0 {
		state.logger.Warn("telemetry@default sink failed", zap.String("sink", sink.Name()), zap.Uint64("failures", n+1), zap.Error(err))
	}
}

func (state *TelemetryActor) unsubscribe() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
}
