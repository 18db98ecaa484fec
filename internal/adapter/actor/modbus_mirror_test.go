package actor

import (
	"fmt"
	"testing"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMirrorRegisters(t *testing.T) {

	assert := assert.New(t)

	regs := MirrorRegisters(domain.GatewaySnapshot{Output: -150.6, OperatingMode: domain.MODE_MANUAL, Stale: true})
	assert.Len(regs, MIRROR_REG_COUNT)
	assert.Equal(uint16(0xC316), regs[0], "float32 high word of -150.6")
	assert.Equal(int16(-151), int16(regs[MIRROR_REG_DEMAND_INT]))
	assert.Equal(uint16(1), regs[MIRROR_REG_MODE])
	assert.Equal(uint16(1), regs[MIRROR_REG_STALE])

	regs = MirrorRegisters(domain.GatewaySnapshot{Output: 1e6})
	assert.Equal(int16(32767), int16(regs[MIRROR_REG_DEMAND_INT]), "saturated")
	assert.Equal(uint16(0), regs[MIRROR_REG_STALE])
}

func TestModbusMirrorActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}

	port := uint(15520)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewModbusMirrorActor(config.ModbusMirrorConfig{Enabled: true, Port: port}, es, logger)
	}))

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	es.Publish(domain.GatewayPolledEvent{
		Snapshot: domain.GatewaySnapshot{Id: "grid", Address: 1, Output: 320, OperatingMode: domain.MODE_AUTO},
		At:       time.Now(),
	})

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://127.0.0.1:%d", port),
		Timeout: time.Second,
	})
	require.NoError(err)
	require.NoError(client.Open())
	defer client.Close()

	client.SetUnitId(1)
	assert.Eventually(func() bool {
		value, err := client.ReadFloat32(MIRROR_REG_DEMAND_FLOAT, modbus.INPUT_REGISTER)
		return err == nil && value == 320
	}, 2*time.Second, 50*time.Millisecond)

	regs, err := client.ReadRegisters(MIRROR_REG_DEMAND_INT, 3, modbus.INPUT_REGISTER)
	require.NoError(err)
	assert.Equal([]uint16{320, 0, 0}, regs)

	// no gateway at this address
	client.SetUnitId(7)
	_, err = client.ReadRegisters(0, 1, modbus.INPUT_REGISTER)
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)

	as.Root.Stop(pid)
	time.Sleep(200 * time.Millisecond)
	as.Shutdown()
}
