package domain

import (
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

// GatewayPolledEvent is published on the event stream every time a gateway answers an inverter poll.
type GatewayPolledEvent struct {
	Snapshot GatewaySnapshot
	At       time.Time
}

// InverterUpdatedEvent is published on the event stream when an inverter reports a new status.
type InverterUpdatedEvent struct {
	InverterId string
	Address    uint8
	Online     bool
	ACPower    float64
	Mode       int
	At         time.Time
}

// InverterInfoEvent is published when an inverter reports its model and firmware.
type InverterInfoEvent struct {
	InverterId string
	Info       solax_modbus.InverterInfo
}
