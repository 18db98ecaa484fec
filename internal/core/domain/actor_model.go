package domain

import (
	"time"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_METER_BUS     = "meterbus"
	ACTOR_ID_INVERTER_BUS  = "inverterbus"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
	ACTOR_ID_TELEMETRY     = "telemetry"
	ACTOR_ID_MODBUS_MIRROR = "modbusmirror"
	ACTOR_ID_SUNSPEC_FEED  = "sunspec"
)

// Meter bus

// PowerReadingEvent carries a new grid power sample for one gateway, as produced by a power source.
type PowerReadingEvent struct {
	GatewayId string
	Watts     float64
}

type SetSwitchRequest struct {
	ActorRequestMixIn
	GatewayId string
	Feature   GatewayFeature
	Value     bool
}

type SetSwitchResponse struct {
	ActorResponseMixIn
}

type SetNumberRequest struct {
	ActorRequestMixIn
	GatewayId string
	Feature   GatewayFeature
	Value     float64
}

type SetNumberResponse struct {
	ActorResponseMixIn
}

type GetGatewayStateRequest struct {
	ActorRequestMixIn
	GatewayId string
}

type GetGatewayStateResponse struct {
	ActorResponseMixIn
	Snapshot *GatewaySnapshot
}

type ListGatewaysRequest struct {
	ActorRequestMixIn
}

type ListGatewaysResponse struct {
	ActorResponseMixIn
	Gateways []GatewaySnapshot
}

// Inverter bus

type GetInverterStateRequest struct {
	ActorRequestMixIn
	InverterId string
}

type GetInverterStateResponse struct {
	ActorResponseMixIn
	Online   bool
	Status   *solax_modbus.InverterStatus
	Info     *solax_modbus.InverterInfo
	Settings *solax_modbus.InverterSettings
	LastSeen *time.Time
}

// QueryInverterSettingsRequest asks the inverter for its grid protection settings, they are logged
// and returned by later GetInverterStateRequest calls.
type QueryInverterSettingsRequest struct {
	ActorRequestMixIn
	InverterId string
}

type QueryInverterSettingsResponse struct {
	ActorResponseMixIn
}

// MQTT

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
