package sunspec_modbus

const (
	// SunSpec well known value at 40000 and the first model after it
	SUNSPEC_BASE_ADDRESS  uint16 = 40000
	SUNSPEC_FIRST_MODEL   uint16 = 40002
	SUNSPEC_MODEL_COMMON  uint16 = 1
	SUNSPEC_MODEL_END     uint16 = 0xFFFF
	SUNSPEC_METER_INT_MIN uint16 = 201
	SUNSPEC_METER_INT_MAX uint16 = 204
	SUNSPEC_METER_FLT_MIN uint16 = 211
	SUNSPEC_METER_FLT_MAX uint16 = 214
)

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
	// SunSpec model id of the meter block (201-204 or 211-214)
	MeterModel uint16
}

type ACMeterPowerFlow struct {
	// Current AC power flow. Positive = import. Negative = export
	CurrentPowerFlowWatt float64
	// Current import AC power
	CurrentImportPowerWatt float64
	// Current export AC power
	CurrentExportPowerWatt float64
	// Lifetime exported energy in kWh
	TotalEnergyExportedKWh float64
	// Lifetime imported energy in kWh
	TotalEnergyImportedKWh float64
	// Grid frequency
	Frequency float64
	// First grid phase voltage
	PhaseAVoltage float64
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*ACMeterInfo, error)
	GetCurrentPowerFlowWatt() (float64, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}

func newPowerFlow(totalRealPower float64) ACMeterPowerFlow {
	flow := ACMeterPowerFlow{
		CurrentPowerFlowWatt: totalRealPower,
	}
	if totalRealPower < 0 {
		flow.CurrentExportPowerWatt = -totalRealPower
	} else {
		flow.CurrentImportPowerWatt = totalRealPower
	}
	return flow
}
