package actor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Input registers served for every gateway, the unit id is the gateway address.
const (
	MIRROR_REG_DEMAND_FLOAT = 0
	MIRROR_REG_DEMAND_INT   = 2
	MIRROR_REG_MODE         = 3
	MIRROR_REG_STALE        = 4
	MIRROR_REG_COUNT        = 5
)

// ModbusMirrorActor serves the last evaluation of every gateway over Modbus TCP, read only.
type ModbusMirrorActor struct {
	config       config.ModbusMirrorConfig
	behavior     actor.Behavior
	server       *modbus.ModbusServer
	registers    *mirrorRegisters
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	logger       *zap.Logger
}

func NewModbusMirrorActor(config config.ModbusMirrorConfig, eventStream *eventstream.EventStream, logger *zap.Logger) *ModbusMirrorActor {
	act := &ModbusMirrorActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		registers:   &mirrorRegisters{units: make(map[uint8][]uint16)},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MODBUS_MIRROR, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ModbusMirrorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusMirrorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		server, err := modbus.NewServer(&modbus.ServerConfiguration{
			URL:        fmt.Sprintf("tcp://0.0.0.0:%d", state.config.Port),
			Timeout:    30 * time.Second,
			MaxClients: 5,
		}, state.registers)
		if err != nil {
			panic(err)
		}
		if err := server.Start(); err != nil {
			state.logger.Error("modbusmirror@default could not start server", zap.Uint("port", state.config.Port), zap.Error(err))
			panic(err)
		}
		state.server = server
		state.logger.Info("modbusmirror@default listening", zap.Uint("port", state.config.Port))

		send := actorutil.SelfSender(ctx)
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			if ev, ok := evt.(domain.GatewayPolledEvent); ok {
				send(ev)
			}
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS_MIRROR,
			Healthy: state.server != nil,
			State:   "serving",
		})
	case domain.GatewayPolledEvent:
		state.registers.update(msg.Snapshot)
	default:
		state.logger.Debug("modbusmirror@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusMirrorActor) stop() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.server != nil {
		state.server.Stop()
		state.server = nil
	}
}

// mirrorRegisters is shared with the server goroutines.
type mirrorRegisters struct {
	mu    sync.RWMutex
	units map[uint8][]uint16
}

func (r *mirrorRegisters) update(snap domain.GatewaySnapshot) {
	regs := MirrorRegisters(snap)
	r.mu.Lock()
	r.units[snap.Address] = regs
	r.mu.Unlock()
}

func (r *mirrorRegisters) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (r *mirrorRegisters) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (r *mirrorRegisters) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (r *mirrorRegisters) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs, ok := r.units[req.UnitId]
	if !ok {
		return nil, modbus.ErrIllegalDataAddress
	}
	end := int(req.Addr) + int(req.Quantity)
	if end > len(regs) {
		return nil, modbus.ErrIllegalDataAddress
	}
	res := make([]uint16, req.Quantity)
	copy(res, regs[req.Addr:end])
	return res, nil
}

// MirrorRegisters encodes a gateway snapshot as the mirror input register block.
func MirrorRegisters(snap domain.GatewaySnapshot) []uint16 {
	regs := make([]uint16, MIRROR_REG_COUNT)
	bits := math.Float32bits(float32(snap.Output))
	regs[MIRROR_REG_DEMAND_FLOAT] = uint16(bits >> 16)
	regs[MIRROR_REG_DEMAND_FLOAT+1] = uint16(bits)
	regs[MIRROR_REG_DEMAND_INT] = uint16(int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(snap.Output)))))
	regs[MIRROR_REG_MODE] = uint16(snap.OperatingMode)
	if snap.Stale {
		regs[MIRROR_REG_STALE] = 1
	}
	return regs
}
