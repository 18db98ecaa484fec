package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/solaxgw2mqtt/internal/adapter/actor"
	"github.com/berfenger/solaxgw2mqtt/internal/adapter/serial"
	"github.com/berfenger/solaxgw2mqtt/internal/adapter/store"
	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/internal/util"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
	"github.com/berfenger/solaxgw2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDependencies(t *testing.T, cfg *config.Config, logger *zap.Logger) (MasterDependencies, map[string]*serial.TestLink) {
	links := map[string]*serial.TestLink{
		domain.ACTOR_ID_METER_BUS:    serial.NewTestLink(solax_modbus.RTURequestFramer{}),
		domain.ACTOR_ID_INVERTER_BUS: serial.NewTestLink(solax_modbus.AA55Framer{}),
	}
	meter, err := sunspec_modbus.CreateTestACMeterModbusReader()
	require.NoError(t, err)
	return MasterDependencies{
		MQTTActorProvider: func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(cfg, es, logger)
		},
		LinkProvider: func(bus string) port.FrameLink {
			return links[bus]
		},
		ACMeterProvider: func(config.GatewayConfig) (sunspec_modbus.ACMeterModbusReader, error) {
			return meter, nil
		},
		Store: store.NewMemoryStore(),
	}, links
}

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	deps, _ := testDependencies(t, &cfg, logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, deps, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(err)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(healthResp.Healthy, "healthy is true: %s", healthResp.State)

	// gateway requests are routed to the meter bus
	res, err = context.RequestFuture(pid, domain.SetSwitchRequest{
		GatewayId: "grid",
		Feature:   domain.FEATURE_MANUAL_MODE,
		Value:     true,
	}, 2*time.Second).Result()
	require.NoError(err)
	assert.False(res.(domain.SetSwitchResponse).HasResponseError())

	res, err = context.RequestFuture(pid, domain.ListGatewaysRequest{}, 2*time.Second).Result()
	require.NoError(err)
	list := res.(domain.ListGatewaysResponse)
	require.Len(list.Gateways, 1)
	assert.Equal("grid", list.Gateways[0].Id)
	assert.True(list.Gateways[0].ManualMode)

	// inverter requests are routed to the inverter bus
	res, err = context.RequestFuture(pid, domain.GetInverterStateRequest{InverterId: "nope"}, 2*time.Second).Result()
	require.NoError(err)
	assert.ErrorIs(res.(domain.GetInverterStateResponse).ResponseError, ErrUnknownInverter)

	context.Stop(pid)
	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestMasterActorWithoutInverterBus(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()
	cfg.InverterBus.Enabled = false
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	deps, _ := testDependencies(t, &cfg, logger)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, deps, logger)
	}))

	res, err := context.RequestFuture(pid, domain.QueryInverterSettingsRequest{InverterId: "inverter"}, 2*time.Second).Result()
	require.NoError(err)
	assert.ErrorIs(res.(domain.QueryInverterSettingsResponse).ResponseError, ErrInverterBusDisabled)

	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	context.Stop(pid)
	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}
