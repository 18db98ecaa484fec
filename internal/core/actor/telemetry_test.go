package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu        sync.Mutex
	name      string
	fail      bool
	gateways  []domain.GatewayPolledEvent
	inverters []domain.InverterUpdatedEvent
	closed    bool
}

func (s *memorySink) Name() string {
	return s.name
}

func (s *memorySink) GatewayPolled(event domain.GatewayPolledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.gateways = append(s.gateways, event)
	return nil
}

func (s *memorySink) InverterUpdated(event domain.InverterUpdatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inverters = append(s.inverters, event)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) counts() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gateways), len(s.inverters), s.closed
}

func TestTelemetryActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}

	good := &memorySink{name: "good"}
	bad := &memorySink{name: "bad", fail: true}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor([]port.TelemetrySink{good, bad}, es, logger)
	}))

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	es.Publish(domain.GatewayPolledEvent{Snapshot: domain.GatewaySnapshot{Id: "grid"}, At: time.Now()})
	es.Publish(domain.GatewayPolledEvent{Snapshot: domain.GatewaySnapshot{Id: "grid"}, At: time.Now()})
	es.Publish(domain.InverterUpdatedEvent{InverterId: "inv", Online: true})
	// not a telemetry event
	es.Publish(domain.PowerReadingEvent{GatewayId: "grid", Watts: 10})

	assert.Eventually(func() bool {
		gws, invs, _ := good.counts()
		return gws == 2 && invs == 1
	}, 2*time.Second, 20*time.Millisecond)

	// a failing sink does not stop the others
	gws, invs, _ := bad.counts()
	assert.Equal(0, gws)
	assert.Equal(1, invs)

	require.NoError(as.Root.StopFuture(pid).Wait())
	_, _, closed := good.counts()
	assert.True(closed)

	as.Shutdown()
}
