package events

import (
	. "github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

// EvaluationToUpdateEvents maps the result of a poll to the power demand and operation mode sensors.
func EvaluationToUpdateEvents(gatewayId string, eval Evaluation) []any {
	var events []any

	// Power demand
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: GatewayEntityId(gatewayId, FEATURE_POWER_DEMAND),
		},
		Value:    eval.Output,
		Decimals: 0,
	})
	events = append(events, OperationModeUpdateEvent(gatewayId, eval))

	return events
}

func OperationModeUpdateEvent(gatewayId string, eval Evaluation) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: GatewayEntityId(gatewayId, FEATURE_OPERATION_MODE),
		},
		Value: eval.Label(),
	}
}

// ControlsToUpdateEvents maps the enabled controls of a gateway to switch and number state events.
func ControlsToUpdateEvents(gatewayId string, enabled func(GatewayFeature) bool, controls ControlInputs) []any {
	var events []any

	if enabled(FEATURE_MANUAL_MODE) {
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: GatewayEntityId(gatewayId, FEATURE_MANUAL_MODE),
			},
			Value: controls.ManualMode,
		})
	}
	if enabled(FEATURE_EMERGENCY_POWER_OFF) {
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: GatewayEntityId(gatewayId, FEATURE_EMERGENCY_POWER_OFF),
			},
			Value: controls.EmergencyOff,
		})
	}
	if enabled(FEATURE_MANUAL_POWER_DEMAND) {
		events = append(events, InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: GatewayEntityId(gatewayId, FEATURE_MANUAL_POWER_DEMAND),
			},
			Value:    controls.ManualPowerDemand,
			Decimals: 0,
		})
	}

	return events
}

// InverterStatusToUpdateEvents maps a status report to the inverter sensors.
// Values not reported by the inverter are skipped.
func InverterStatusToUpdateEvents(inverterId string, online bool, st *solax_modbus.InverterStatus) []any {
	var events []any

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: InverterEntityId(inverterId, SENSOR_ID_INVERTER_ONLINE),
		},
		Value: online,
	})
	if st == nil {
		return events
	}

	for _, spec := range InverterSensors {
		id := InverterEntityId(inverterId, spec.Id)
		if spec.Text != nil {
			events = append(events, TextSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: id,
				},
				Value: spec.Text(st),
			})
			continue
		}
		if value, ok := spec.Value(st); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: id,
				},
				Value:    value,
				Decimals: spec.Decimals,
			})
		}
	}

	return events
}
