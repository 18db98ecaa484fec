package sunspec_modbus

import (
	"errors"
	"sync"
)

var ErrTestMeterOffline = errors.New("test meter offline")

func CreateTestACMeterModbusReader() (*TestACMeterModbusReader, error) {
	return &TestACMeterModbusReader{power: -1250}, nil
}

// TestACMeterModbusReader serves a fixed power value that tests can change or make fail.
type TestACMeterModbusReader struct {
	mu      sync.Mutex
	power   float64
	offline bool
	reads   int
}

func (reader *TestACMeterModbusReader) SetPower(watts float64) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.power = watts
}

func (reader *TestACMeterModbusReader) SetOffline(offline bool) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.offline = offline
}

func (reader *TestACMeterModbusReader) Reads() int {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	return reader.reads
}

func (reader *TestACMeterModbusReader) Open() error {
	return nil
}

func (reader *TestACMeterModbusReader) Close() error {
	return nil
}

func (reader *TestACMeterModbusReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "SolaxGW",
		Model:        "Smart Meter TS 65A-3",
		Version:      "1.2",
		MeterModel:   203,
	}, nil
}

func (reader *TestACMeterModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.reads++
	if reader.offline {
		return 0, ErrTestMeterOffline
	}
	return reader.power, nil
}

func (reader *TestACMeterModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	power, err := reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	flow := newPowerFlow(power)
	flow.TotalEnergyExportedKWh = 2770.34
	flow.TotalEnergyImportedKWh = 550.22
	flow.Frequency = 50
	flow.PhaseAVoltage = 234.24
	return &flow, nil
}

var _ ACMeterModbusReader = &TestACMeterModbusReader{}
