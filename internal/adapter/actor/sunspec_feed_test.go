package actor

import (
	"fmt"
	"testing"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sunspecGateway(invert bool) config.GatewayConfig {
	return config.GatewayConfig{
		Id: "grid",
		PowerSource: config.PowerSourceConfig{
			Type:         config.POWER_SOURCE_SUNSPEC,
			Host:         "meter.local",
			Port:         502,
			UnitId:       240,
			PollInterval: 50 * time.Millisecond,
			Timeout:      200 * time.Millisecond,
			Invert:       invert,
		},
	}
}

func TestSunSpecFeedActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	meter, err := sunspec_modbus.CreateTestACMeterModbusReader()
	require.NoError(err)
	meter.SetPower(-1250)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	provider := func(config.GatewayConfig) (sunspec_modbus.ACMeterModbusReader, error) {
		return meter, nil
	}
	parent := &testParent{
		props: actor.PropsFromProducer(func() actor.Actor {
			return NewSunSpecFeedActor(sunspecGateway(true), provider, logger)
		}),
		child:    make(chan *actor.PID, 1),
		received: make(chan any, 100),
	}
	parentPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return parent }))
	pid := <-parent.child

	select {
	case msg := <-parent.received:
		// inverted sign
		assert.Equal(domain.PowerReadingEvent{GatewayId: "grid", Watts: 1250}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading")
	}

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 1*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.ActorHealthResponse)
	assert.Equal("sunspec_grid", resp.Id)

	context.Stop(parentPID)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestSunSpecFeedActorFailingMeter(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	meter, err := sunspec_modbus.CreateTestACMeterModbusReader()
	require.NoError(err)
	meter.SetOffline(true)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	provider := func(config.GatewayConfig) (sunspec_modbus.ACMeterModbusReader, error) {
		return meter, nil
	}
	parent := &testParent{
		props: actor.PropsFromProducer(func() actor.Actor {
			return NewSunSpecFeedActor(sunspecGateway(false), provider, logger)
		}),
		child:    make(chan *actor.PID, 1),
		received: make(chan any, 100),
	}
	parentPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return parent }))
	<-parent.child

	time.Sleep(500 * time.Millisecond)

	// failed reads never produce a reading
	assert.Empty(parent.received)
	assert.Greater(meter.Reads(), 1)

	// once back online readings flow again, after the supervisor restarted the feed if needed
	meter.SetOffline(false)
	meter.SetPower(90)
	select {
	case msg := <-parent.received:
		assert.Equal(domain.PowerReadingEvent{GatewayId: "grid", Watts: 90}, msg)
	case <-time.After(3 * time.Second):
		t.Fatal("no reading after recovery")
	}

	context.Stop(parentPID)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestSunSpecFeedActorWithModbusMeter(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	port := uint(15620)
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://127.0.0.1:%d", port),
		Timeout:    5 * time.Second,
		MaxClients: 2,
	}, sunspec_modbus.NewTestIntSFMeterHandler())
	require.NoError(err)
	require.NoError(server.Start())
	defer server.Stop()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	gateway := sunspecGateway(false)
	gateway.PowerSource.Host = "127.0.0.1"
	gateway.PowerSource.Port = port
	gateway.PowerSource.Timeout = 1 * time.Second

	parent := &testParent{
		props: actor.PropsFromProducer(func() actor.Actor {
			return NewSunSpecFeedActor(gateway, SunSpecMeterProvider(logger), logger)
		}),
		child:    make(chan *actor.PID, 1),
		received: make(chan any, 100),
	}
	parentPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return parent }))
	<-parent.child

	// the meter is surveyed and its scaled power (-12345 x 10^-1) is forwarded
	select {
	case msg := <-parent.received:
		ev, ok := msg.(domain.PowerReadingEvent)
		require.True(ok, "got %T", msg)
		assert.Equal("grid", ev.GatewayId)
		assert.InDelta(-1234.5, ev.Watts, 0.001)
	case <-time.After(3 * time.Second):
		t.Fatal("no reading from the modbus meter")
	}

	context.Stop(parentPID)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}
