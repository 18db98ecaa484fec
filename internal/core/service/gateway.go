package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/mathutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

var (
	ErrDemandOutOfRange   = errors.New("manual power demand out of range")
	ErrFeatureDisabled    = errors.New("feature is not enabled")
	ErrFeatureNotWritable = errors.New("feature is read only")
	ErrInvalidReading     = errors.New("invalid power reading")
)

type GatewayConfig struct {
	Id                  string
	Address             uint8
	InactivityTimeout   time.Duration
	StaleFallback       domain.StaleFallback
	DemandLimits        domain.NumberBounds
	ManualModeEnabled   bool
	EmergencyOffEnabled bool
	ManualDemandEnabled bool
}

func (c GatewayConfig) FeatureEnabled(feature domain.GatewayFeature) bool {
	switch feature {
	case domain.FEATURE_MANUAL_MODE:
		return c.ManualModeEnabled
	case domain.FEATURE_EMERGENCY_POWER_OFF:
		return c.EmergencyOffEnabled
	case domain.FEATURE_MANUAL_POWER_DEMAND:
		return c.ManualDemandEnabled
	case domain.FEATURE_POWER_DEMAND, domain.FEATURE_OPERATION_MODE:
		return true
	}
	return false
}

// MeterPoll is a decoded meter request received from the inverter.
type MeterPoll struct {
	Request solax_modbus.MeterRequest
	At      time.Time
}

type MeterReply struct {
	Frame      []byte
	Evaluation domain.Evaluation
	// the request asked for the power register, the value should be published
	PowerRequest bool
}

// MeterGateway emulates the grid meter expected by the inverter on one bus address.
type MeterGateway struct {
	config   GatewayConfig
	arbiter  ModeArbiter
	feed     SensorFeedTracker
	controls domain.ControlInputs
	polls    uint64
}

func NewMeterGateway(cfg GatewayConfig, initial domain.ControlInputs) (*MeterGateway, error) {
	if cfg.Id == "" {
		return nil, errors.New("gateway id is required")
	}
	if cfg.DemandLimits.Min > cfg.DemandLimits.Max {
		return nil, fmt.Errorf("gateway %s: manual power demand min %.0f is greater than max %.0f",
			cfg.Id, cfg.DemandLimits.Min, cfg.DemandLimits.Max)
	}
	if cfg.StaleFallback == "" {
		cfg.StaleFallback = domain.STALE_FALLBACK_ZERO
	}

	gw := &MeterGateway{
		config: cfg,
		arbiter: ModeArbiter{
			Limits:            cfg.DemandLimits,
			InactivityTimeout: cfg.InactivityTimeout,
			StaleFallback:     cfg.StaleFallback,
		},
	}
	gw.controls.ManualMode = initial.ManualMode && cfg.ManualModeEnabled
	gw.controls.EmergencyOff = initial.EmergencyOff && cfg.EmergencyOffEnabled
	gw.controls.ManualPowerDemand = mathutil.Clamp(initial.ManualPowerDemand, cfg.DemandLimits.Min, cfg.DemandLimits.Max)
	return gw, nil
}

func (g *MeterGateway) Id() string {
	return g.config.Id
}

func (g *MeterGateway) Config() GatewayConfig {
	return g.config
}

func (g *MeterGateway) Device() domain.BusDevice {
	return domain.BusDevice{
		Id:      g.config.Id,
		Address: g.config.Address,
		Kind:    domain.DEVICE_KIND_METER,
	}
}

func (g *MeterGateway) Controls() domain.ControlInputs {
	return g.controls
}

func (g *MeterGateway) OnReading(watts float64, now time.Time) error {
	if math.IsNaN(watts) || math.IsInf(watts, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidReading, watts)
	}
	g.feed.OnReading(watts, now)
	return nil
}

func (g *MeterGateway) SetManualMode(value bool) error {
	if !g.config.ManualModeEnabled {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, domain.FEATURE_MANUAL_MODE)
	}
	g.controls.ManualMode = value
	return nil
}

func (g *MeterGateway) SetEmergencyOff(value bool) error {
	if !g.config.EmergencyOffEnabled {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, domain.FEATURE_EMERGENCY_POWER_OFF)
	}
	g.controls.EmergencyOff = value
	return nil
}

func (g *MeterGateway) SetManualPowerDemand(value float64) error {
	if !g.config.ManualDemandEnabled {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, domain.FEATURE_MANUAL_POWER_DEMAND)
	}
	limits := g.config.DemandLimits
	if math.IsNaN(value) || value < limits.Min || value > limits.Max {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrDemandOutOfRange, value, limits.Min, limits.Max)
	}
	g.controls.ManualPowerDemand = value
	return nil
}

func (g *MeterGateway) SetSwitch(feature domain.GatewayFeature, value bool) error {
	switch feature {
	case domain.FEATURE_MANUAL_MODE:
		return g.SetManualMode(value)
	case domain.FEATURE_EMERGENCY_POWER_OFF:
		return g.SetEmergencyOff(value)
	}
	return fmt.Errorf("%w: %s is not a switch", ErrFeatureNotWritable, feature)
}

func (g *MeterGateway) SetNumber(feature domain.GatewayFeature, value float64) error {
	if feature == domain.FEATURE_MANUAL_POWER_DEMAND {
		return g.SetManualPowerDemand(value)
	}
	return fmt.Errorf("%w: %s is not a number", ErrFeatureNotWritable, feature)
}

// OnPoll evaluates the demand for a poll received at now. It does not modify the gateway.
func (g *MeterGateway) OnPoll(now time.Time) domain.Evaluation {
	return g.arbiter.Evaluate(g.controls, &g.feed, now)
}

// Handle answers a meter request. Every request is answered, a stale or disabled gateway reports 0 W.
func (g *MeterGateway) Handle(poll MeterPoll) (MeterReply, error) {
	eval := g.OnPoll(poll.At)
	frame, err := solax_modbus.EncodeMeterReply(poll.Request, eval.Output)
	if err != nil {
		return MeterReply{Evaluation: eval}, err
	}
	g.polls++
	return MeterReply{
		Frame:        frame,
		Evaluation:   eval,
		PowerRequest: poll.Request.IsPowerRequest(),
	}, nil
}

func (g *MeterGateway) Snapshot(now time.Time) domain.GatewaySnapshot {
	eval := g.OnPoll(now)
	snap := domain.GatewaySnapshot{
		Id:                g.config.Id,
		Address:           g.config.Address,
		Mode:              eval.Mode.String(),
		OperatingMode:     eval.Mode,
		ModeLabel:         eval.Label(),
		Output:            eval.Output,
		Stale:             eval.Stale,
		InactivityTimeout: g.config.InactivityTimeout,
		ManualMode:        g.controls.ManualMode,
		EmergencyOff:      g.controls.EmergencyOff,
		ManualPowerDemand: g.controls.ManualPowerDemand,
		Polls:             g.polls,
	}
	if last, ok := g.feed.Last(); ok {
		watts := last.Watts
		age := now.Sub(last.ObservedAt).Seconds()
		snap.LastReading = &watts
		snap.LastReadingAge = &age
	}
	return snap
}
