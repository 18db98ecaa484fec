package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_INVERTER_ONLINE       = "online"
	SENSOR_ID_INVERTER_TEMPERATURE  = "temperature"
	SENSOR_ID_INVERTER_ENERGY_TODAY = "energy_today"
	SENSOR_ID_INVERTER_PV1_VOLTAGE  = "pv1_voltage"
	SENSOR_ID_INVERTER_PV2_VOLTAGE  = "pv2_voltage"
	SENSOR_ID_INVERTER_PV1_CURRENT  = "pv1_current"
	SENSOR_ID_INVERTER_PV2_CURRENT  = "pv2_current"
	SENSOR_ID_INVERTER_AC_CURRENT   = "ac_current"
	SENSOR_ID_INVERTER_AC_VOLTAGE   = "ac_voltage"
	SENSOR_ID_INVERTER_AC_FREQUENCY = "ac_frequency"
	SENSOR_ID_INVERTER_AC_POWER     = "ac_power"
	SENSOR_ID_INVERTER_ENERGY_TOTAL = "energy_total"
	SENSOR_ID_INVERTER_RUNTIME      = "runtime_total"
	SENSOR_ID_INVERTER_MODE         = "mode"
	SENSOR_ID_INVERTER_MODE_NAME    = "mode_name"
	SENSOR_ID_INVERTER_ERROR_BITS   = "error_bits"
	SENSOR_ID_INVERTER_ERRORS       = "errors"
	SENSOR_ID_INVERTER_CT_POWER     = "ct_grid_power"
	STATE_CLASS_MEASUREMENT         = "measurement"
	STATE_CLASS_TOTAL_INCREASING    = "total_increasing"
	DEVICE_CLASS_CURRENT            = "current"
	DEVICE_CLASS_DURATION           = "duration"
	DEVICE_CLASS_ENERGY             = "energy"
	DEVICE_CLASS_FREQUENCY          = "frequency"
	DEVICE_CLASS_POWER              = "power"
	DEVICE_CLASS_TEMPERATURE        = "temperature"
	DEVICE_CLASS_VOLTAGE            = "voltage"
	DEVICE_CLASS_CONNECTIVITY       = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC         = "diagnostic"
	ENTITY_CLASS_CONFIG             = "config"
	SENSOR_TYPE_SENSOR              = "sensor"
	SENSOR_TYPE_BINARY              = "binary_sensor"
	INPUT_NUMBER_MODE_BOX           = "box"
	INPUT_NUMBER_MODE_SLIDER        = "slider"
)

type NumberBounds struct {
	Min  float64
	Max  float64
	Step float64
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("solaxgw_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Solax Gateway",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Solax Gateway %s", md5HashShort(baseTopic)),
	}
}

func GatewayDevice(bridge Device, gatewayId string, address uint8) Device {
	return Device{
		Id:           fmt.Sprintf("sgw_meter_%s", md5HashShort(bridge.Id+gatewayId)),
		Manufacturer: "ACasal",
		Model:        fmt.Sprintf("Virtual meter @%d", address),
		Version:      bridge.Version,
		Name:         fmt.Sprintf("Meter gateway %s", gatewayId),
		ViaDevice:    bridge.Id,
	}
}

func InverterDevice(bridge Device, inverterId string, sn solax_modbus.SerialNumber, model string, info *solax_modbus.InverterInfo) Device {
	dev := Device{
		Id:           fmt.Sprintf("sgw_inverter_%s", md5HashShort(sn.String())),
		Manufacturer: "SolaX",
		Model:        model,
		SerialNumber: sn.String(),
		Name:         fmt.Sprintf("Inverter %s", inverterId),
		ViaDevice:    bridge.Id,
	}
	if info != nil {
		if info.Manufacturer != "" {
			dev.Manufacturer = info.Manufacturer
		}
		if info.ModuleName != "" {
			dev.Model = info.ModuleName
		}
		dev.Version = info.FirmwareVersion
	}
	return dev
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// GatewayEntities builds the HA entities of a gateway from the feature table.
func GatewayEntities(device Device, gatewayId string, enabled func(GatewayFeature) bool,
	demand NumberBounds, initialDemand float64) ([]GenericSensor, []GenericSwitch, []GenericInputNumber) {

	var sensors []GenericSensor
	var switches []GenericSwitch
	var numbers []GenericInputNumber

	for _, spec := range GatewayFeatures {
		if spec.Configurable && !enabled(spec.Feature) {
			continue
		}
		id := GatewayEntityId(gatewayId, spec.Feature)
		switch spec.Kind {
		case ENTITY_KIND_SENSOR, ENTITY_KIND_TEXT_SENSOR:
			sensors = append(sensors, GenericSensor{
				Device:            device,
				Id:                id,
				SensorType:        SENSOR_TYPE_SENSOR,
				Name:              spec.Name,
				UniqueId:          uniqueId(device.Id, string(spec.Feature)),
				UnitOfMeasurement: spec.UnitOfMeasurement,
				StateClass:        spec.StateClass,
				DeviceClass:       spec.DeviceClass,
				Icon:              spec.Icon,
			})
		case ENTITY_KIND_SWITCH:
			switches = append(switches, GenericSwitch{
				Device:   device,
				Id:       id,
				Name:     spec.Name,
				UniqueId: uniqueId(device.Id, string(spec.Feature)),
				Icon:     spec.Icon,
			})
		case ENTITY_KIND_NUMBER:
			numbers = append(numbers, GenericInputNumber{
				Device:            device,
				Id:                id,
				Name:              spec.Name,
				UniqueId:          uniqueId(device.Id, string(spec.Feature)),
				Icon:              spec.Icon,
				UnitOfMeasurement: spec.UnitOfMeasurement,
				DeviceClass:       spec.DeviceClass,
				Min:               demand.Min,
				Max:               demand.Max,
				Step:              demand.Step,
				Mode:              INPUT_NUMBER_MODE_BOX,
				InitialValue:      initialDemand,
			})
		}
	}
	return sensors, switches, numbers
}

// InverterSensorSpec maps one field of an inverter status report to a sensor.
type InverterSensorSpec struct {
	Id                string
	Name              string
	UnitOfMeasurement string
	DeviceClass       string
	StateClass        string
	EntityCategory    string
	Icon              string
	Decimals          uint
	EnabledByDefault  *bool
	Value             func(st *solax_modbus.InverterStatus) (float64, bool)
	Text              func(st *solax_modbus.InverterStatus) string
}

func numeric(get func(st *solax_modbus.InverterStatus) float64) func(st *solax_modbus.InverterStatus) (float64, bool) {
	return func(st *solax_modbus.InverterStatus) (float64, bool) {
		v := get(st)
		return v, !math.IsNaN(v)
	}
}

func optional(get func(st *solax_modbus.InverterStatus) *float64) func(st *solax_modbus.InverterStatus) (float64, bool) {
	return func(st *solax_modbus.InverterStatus) (float64, bool) {
		v := get(st)
		if v == nil || math.IsNaN(*v) {
			return 0, false
		}
		return *v, true
	}
}

var InverterSensors = []InverterSensorSpec{
	{
		Id: SENSOR_ID_INVERTER_TEMPERATURE, Name: "Temperature", UnitOfMeasurement: "°C",
		DeviceClass: DEVICE_CLASS_TEMPERATURE, StateClass: STATE_CLASS_MEASUREMENT,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.Temperature }),
	},
	{
		Id: SENSOR_ID_INVERTER_ENERGY_TODAY, Name: "Energy today", UnitOfMeasurement: "kWh", Decimals: 1,
		DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.EnergyToday }),
	},
	{
		Id: SENSOR_ID_INVERTER_PV1_VOLTAGE, Name: "PV1 voltage", UnitOfMeasurement: "V", Decimals: 1,
		DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.DC1Voltage }),
	},
	{
		Id: SENSOR_ID_INVERTER_PV2_VOLTAGE, Name: "PV2 voltage", UnitOfMeasurement: "V", Decimals: 1,
		DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT, EnabledByDefault: optionalBool(false),
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.DC2Voltage }),
	},
	{
		Id: SENSOR_ID_INVERTER_PV1_CURRENT, Name: "PV1 current", UnitOfMeasurement: "A", Decimals: 1,
		DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.DC1Current }),
	},
	{
		Id: SENSOR_ID_INVERTER_PV2_CURRENT, Name: "PV2 current", UnitOfMeasurement: "A", Decimals: 1,
		DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT, EnabledByDefault: optionalBool(false),
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.DC2Current }),
	},
	{
		Id: SENSOR_ID_INVERTER_AC_CURRENT, Name: "AC current", UnitOfMeasurement: "A", Decimals: 1,
		DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.ACCurrent }),
	},
	{
		Id: SENSOR_ID_INVERTER_AC_VOLTAGE, Name: "AC voltage", UnitOfMeasurement: "V", Decimals: 1,
		DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT,
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.ACVoltage }),
	},
	{
		Id: SENSOR_ID_INVERTER_AC_FREQUENCY, Name: "AC frequency", UnitOfMeasurement: "Hz", Decimals: 2,
		DeviceClass: DEVICE_CLASS_FREQUENCY, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:sine-wave",
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.ACFrequency }),
	},
	{
		Id: SENSOR_ID_INVERTER_AC_POWER, Name: "AC power", UnitOfMeasurement: "W",
		DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:solar-power",
		Value: numeric(func(st *solax_modbus.InverterStatus) float64 { return st.ACPower }),
	},
	{
		Id: SENSOR_ID_INVERTER_ENERGY_TOTAL, Name: "Energy total", UnitOfMeasurement: "kWh", Decimals: 1,
		DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING,
		Value: optional(func(st *solax_modbus.InverterStatus) *float64 { return st.EnergyTotal }),
	},
	{
		Id: SENSOR_ID_INVERTER_RUNTIME, Name: "Runtime total", UnitOfMeasurement: "h",
		DeviceClass: DEVICE_CLASS_DURATION, StateClass: STATE_CLASS_TOTAL_INCREASING, EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Value: optional(func(st *solax_modbus.InverterStatus) *float64 { return st.RuntimeTotal }),
	},
	{
		Id: SENSOR_ID_INVERTER_MODE, Name: "Mode", EntityCategory: ENTITY_CLASS_DIAGNOSTIC, EnabledByDefault: optionalBool(false),
		Value: func(st *solax_modbus.InverterStatus) (float64, bool) { return float64(st.Mode), true },
	},
	{
		Id: SENSOR_ID_INVERTER_MODE_NAME, Name: "Mode name", Icon: "mdi:information",
		Text: func(st *solax_modbus.InverterStatus) string { return st.ModeName },
	},
	{
		Id: SENSOR_ID_INVERTER_ERROR_BITS, Name: "Error bits", EntityCategory: ENTITY_CLASS_DIAGNOSTIC, EnabledByDefault: optionalBool(false),
		Value: func(st *solax_modbus.InverterStatus) (float64, bool) { return float64(st.ErrorBits), true },
	},
	{
		Id: SENSOR_ID_INVERTER_ERRORS, Name: "Errors", Icon: "mdi:alert-circle-outline",
		Text: func(st *solax_modbus.InverterStatus) string { return st.Errors },
	},
	{
		Id: SENSOR_ID_INVERTER_CT_POWER, Name: "CT grid power", UnitOfMeasurement: "W",
		DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT, EnabledByDefault: optionalBool(false),
		Value: optional(func(st *solax_modbus.InverterStatus) *float64 { return st.CTGridPower }),
	},
}

func InverterEntityId(inverterId, sensorId string) string {
	return fmt.Sprintf("%s_%s", inverterId, sensorId)
}

func InverterEntities(device Device, inverterId string) []GenericSensor {

	sensors := []GenericSensor{{
		Device:         device,
		Id:             InverterEntityId(inverterId, SENSOR_ID_INVERTER_ONLINE),
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Online",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, SENSOR_ID_INVERTER_ONLINE),
	}}

	for _, spec := range InverterSensors {
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                InverterEntityId(inverterId, spec.Id),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              spec.Name,
			UniqueId:          uniqueId(device.Id, spec.Id),
			UnitOfMeasurement: spec.UnitOfMeasurement,
			StateClass:        spec.StateClass,
			DeviceClass:       spec.DeviceClass,
			EntityCategory:    spec.EntityCategory,
			EnabledByDefault:  spec.EnabledByDefault,
			Icon:              spec.Icon,
		})
	}
	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
