package domain

import (
	"time"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

type DeviceKind string

const (
	DEVICE_KIND_METER            DeviceKind = "meter"
	DEVICE_KIND_INVERTER_GATEWAY DeviceKind = "inverter_gateway"
	DEVICE_KIND_INVERTER         DeviceKind = "inverter"
	DEVICE_KIND_GENERIC          DeviceKind = "generic"
)

// BusDevice is a device attached to one physical bus, identified by its address on that bus.
type BusDevice struct {
	Id           string
	Address      uint8
	SerialNumber *solax_modbus.SerialNumber
	Kind         DeviceKind
}

type OperatingMode int

const (
	MODE_AUTO OperatingMode = iota
	MODE_MANUAL
	MODE_EMERGENCY_OFF
)

const (
	MODE_LABEL_AUTO        = "Auto"
	MODE_LABEL_MANUAL      = "Manual"
	MODE_LABEL_OFF         = "Off"
	MODE_LABEL_METER_FAULT = "Meter fault"
)

func (m OperatingMode) String() string {
	switch m {
	case MODE_MANUAL:
		return "MANUAL"
	case MODE_EMERGENCY_OFF:
		return "EMERGENCY_OFF"
	default:
		return "AUTO"
	}
}

type StaleFallback string

const (
	STALE_FALLBACK_ZERO      StaleFallback = "zero"
	STALE_FALLBACK_HOLD_LAST StaleFallback = "hold_last"
)

type PowerReading struct {
	Watts      float64
	ObservedAt time.Time
}

// ControlInputs are the user controlled inputs of a gateway.
type ControlInputs struct {
	ManualMode        bool
	EmergencyOff      bool
	ManualPowerDemand float64
}

// Evaluation is the result of arbitrating the gateway inputs for one poll.
type Evaluation struct {
	Mode   OperatingMode
	Output float64
	// AUTO mode without a fresh sensor reading
	Stale bool
}

func (e Evaluation) Label() string {
	switch e.Mode {
	case MODE_EMERGENCY_OFF:
		return MODE_LABEL_OFF
	case MODE_MANUAL:
		return MODE_LABEL_MANUAL
	}
	if e.Stale {
		return MODE_LABEL_METER_FAULT
	}
	return MODE_LABEL_AUTO
}

type GatewaySnapshot struct {
	Id                string        `json:"id"`
	Address           uint8         `json:"address"`
	Mode              string        `json:"mode"`
	OperatingMode     OperatingMode `json:"-"`
	ModeLabel         string        `json:"mode_label"`
	Output            float64       `json:"output"`
	Stale             bool          `json:"stale"`
	LastReading       *float64      `json:"last_reading,omitempty"`
	LastReadingAge    *float64      `json:"last_reading_age_seconds,omitempty"`
	InactivityTimeout time.Duration `json:"-"`
	ManualMode        bool          `json:"manual_mode"`
	EmergencyOff      bool          `json:"emergency_power_off"`
	ManualPowerDemand float64       `json:"manual_power_demand"`
	Polls             uint64        `json:"polls"`
}
