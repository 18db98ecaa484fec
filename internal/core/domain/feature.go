package domain

import "fmt"

type GatewayFeature string

const (
	FEATURE_POWER_DEMAND        GatewayFeature = "power_demand"
	FEATURE_OPERATION_MODE      GatewayFeature = "operation_mode"
	FEATURE_MANUAL_MODE         GatewayFeature = "manual_mode"
	FEATURE_EMERGENCY_POWER_OFF GatewayFeature = "emergency_power_off"
	FEATURE_MANUAL_POWER_DEMAND GatewayFeature = "manual_power_demand"
)

type EntityKind string

const (
	ENTITY_KIND_SENSOR      EntityKind = "sensor"
	ENTITY_KIND_TEXT_SENSOR EntityKind = "text_sensor"
	ENTITY_KIND_SWITCH      EntityKind = "switch"
	ENTITY_KIND_NUMBER      EntityKind = "number"
)

// FeatureSpec describes one entity a gateway can expose.
type FeatureSpec struct {
	Feature           GatewayFeature
	Kind              EntityKind
	Name              string
	Icon              string
	UnitOfMeasurement string
	DeviceClass       string
	StateClass        string
	Decimals          uint
	// only exposed when enabled in the gateway config
	Configurable bool
}

// GatewayFeatures is the closed set of entities of a meter gateway.
var GatewayFeatures = []FeatureSpec{
	{
		Feature:           FEATURE_POWER_DEMAND,
		Kind:              ENTITY_KIND_SENSOR,
		Name:              "Power demand",
		Icon:              "mdi:transmission-tower",
		UnitOfMeasurement: "W",
		DeviceClass:       DEVICE_CLASS_POWER,
		StateClass:        STATE_CLASS_MEASUREMENT,
	},
	{
		Feature: FEATURE_OPERATION_MODE,
		Kind:    ENTITY_KIND_TEXT_SENSOR,
		Name:    "Operation mode",
		Icon:    "mdi:heart-pulse",
	},
	{
		Feature:      FEATURE_MANUAL_MODE,
		Kind:         ENTITY_KIND_SWITCH,
		Name:         "Manual mode",
		Icon:         "mdi:auto-fix",
		Configurable: true,
	},
	{
		Feature:      FEATURE_EMERGENCY_POWER_OFF,
		Kind:         ENTITY_KIND_SWITCH,
		Name:         "Emergency power off",
		Icon:         "mdi:power",
		Configurable: true,
	},
	{
		Feature:           FEATURE_MANUAL_POWER_DEMAND,
		Kind:              ENTITY_KIND_NUMBER,
		Name:              "Manual power demand",
		Icon:              "mdi:home-lightning-bolt-outline",
		UnitOfMeasurement: "W",
		DeviceClass:       DEVICE_CLASS_POWER,
		Configurable:      true,
	},
}

func LookupGatewayFeature(feature string) (FeatureSpec, bool) {
	for i := range GatewayFeatures {
		if string(GatewayFeatures[i].Feature) == feature {
			return GatewayFeatures[i], true
		}
	}
	return FeatureSpec{}, false
}

// GatewayEntityId is the object id used for MQTT topics and HA discovery.
func GatewayEntityId(gatewayId string, feature GatewayFeature) string {
	return fmt.Sprintf("%s_%s", gatewayId, feature)
}

type EntityRef struct {
	GatewayId string
	Feature   FeatureSpec
}

// EntityIndex resolves entity ids received from MQTT back to the gateway feature they control.
// It is built once from the configuration.
type EntityIndex map[string]EntityRef

func (idx EntityIndex) Add(gatewayId string, spec FeatureSpec) {
	idx[GatewayEntityId(gatewayId, spec.Feature)] = EntityRef{
		GatewayId: gatewayId,
		Feature:   spec,
	}
}

func (idx EntityIndex) Resolve(entityId string) (EntityRef, bool) {
	ref, ok := idx[entityId]
	return ref, ok
}
