package solax_modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	MODEL_X1_MINI = "x1_mini"
	MODEL_X1      = "x1"

	DEVICE_INFO_SIZE = 58
	SETTINGS_SIZE    = 68

	MODE_OFFLINE      = -1
	MODE_NAME_OFFLINE = "Offline"
	MODE_NAME_UNKNOWN = "Unknown"
)

var ErrInvalidResponseSize = errors.New("invalid response size")

// InverterModel describes the status report layout differences between the supported inverters.
type InverterModel struct {
	Name              string
	StatusSizes       []int
	ModeNames         []string
	ErrorNames        [32]string
	SignedTemperature bool
	// the X1 mini reports a zero total once per day on boot
	SkipZeroTotals bool
}

var X1MiniModel = InverterModel{
	Name:        MODEL_X1_MINI,
	StatusSizes: []int{50, 52, 56},
	ModeNames: []string{
		"Wait",
		"Check",
		"Normal",
		"Fault",
		"Permanent Fault",
		"Update",
		"Self Test",
	},
	ErrorNames: [32]string{
		"TZ Protect Fault",
		"Grid Lost Fault",
		"Grid Voltage Fault",
		"Grid Frequency Fault",
		"PLL Lost Fault",
		"Bus Voltage Fault",
		"Error (Bit 6)",
		"Oscillator Fault",
		"DCI Over Current Protection Fault",
		"Residual Current Fault",
		"PV Voltage Fault",
		"AC voltage out of range since 10 minutes",
		"Isolation Fault",
		"Over Temperature Fault",
		"Fan Fault",
		"Error (Bit 15)",
		"SPI Communication Fault",
		"SCI Communication Fault",
		"Error (Bit 18)",
		"Input Configuration Fault",
		"EEPROM Fault",
		"Relay Fault",
		"Sample Consistence Fault",
		"Residual Current Device Fault",
		"Error (Bit 24)",
		"Error (Bit 25)",
		"Error (Bit 26)",
		"Error (Bit 27)",
		"Error (Bit 28)",
		"DCI Device Fault",
		"Other Device Fault",
		"Error (Bit 31)",
	},
	SignedTemperature: true,
	SkipZeroTotals:    true,
}

var X1Model = InverterModel{
	Name:        MODEL_X1,
	StatusSizes: []int{52},
	ModeNames: []string{
		"Wait",
		"Check",
		"Normal",
		"Fault",
		"Permanent Fault",
		"Update",
		"EPS check",
		"EPS",
		"Self Test",
		"Idle",
	},
	ErrorNames: [32]string{
		"Tz Protection Fault",
		"Mains Lost Fault",
		"Grid Voltage Fault",
		"Grid Frequency Fault",
		"PLL Lost Fault",
		"Bus Voltage Fault",
		"Error Bit 06",
		"Oscillator Fault",
		"DCI OCP Fault",
		"Residual Current Fault",
		"PV Voltage Fault",
		"Ac10Mins Voltage Fault",
		"Isolation Fault",
		"Over Temperature Fault",
		"Ventilator Fault",
		"Error Bit 15",
		"SPI Communication Fault",
		"SCI Communication Fault",
		"Error Bit 18",
		"Input Configuration Fault",
		"EEPROM Fault",
		"Relay Fault",
		"Sample Consistence Fault",
		"Residual-Current Device Fault",
		"Error Bit 24",
		"Error Bit 25",
		"Error Bit 26",
		"Error Bit 27",
		"Error Bit 28",
		"DCI Device Fault",
		"Other Device Fault",
		"Error Bit 31",
	},
}

func InverterModelByName(name string) (InverterModel, error) {
	switch name {
	case MODEL_X1_MINI, "":
		return X1MiniModel, nil
	case MODEL_X1:
		return X1Model, nil
	}
	return InverterModel{}, fmt.Errorf("unknown inverter model %q", name)
}

func (m InverterModel) ModeName(mode int) string {
	if mode == MODE_OFFLINE {
		return MODE_NAME_OFFLINE
	}
	if mode >= 0 && mode < len(m.ModeNames) {
		return m.ModeNames[mode]
	}
	return MODE_NAME_UNKNOWN
}

// ErrorText joins the names of every bit set in the error bitmask with ";".
func (m InverterModel) ErrorText(bits uint32) string {
	var errs []string
	for i := 0; i < 32; i++ {
		if bits&(1<<i) != 0 {
			errs = append(errs, m.ErrorNames[i])
		}
	}
	return strings.Join(errs, ";")
}

func (m InverterModel) validStatusSize(size int) bool {
	for _, s := range m.StatusSizes {
		if s == size {
			return true
		}
	}
	return false
}

type InverterStatus struct {
	Temperature float64
	EnergyToday float64
	DC1Voltage  float64
	DC2Voltage  float64
	DC1Current  float64
	DC2Current  float64
	ACCurrent   float64
	ACVoltage   float64
	ACFrequency float64
	ACPower     float64

	// nil when the inverter reported zero
	EnergyTotal  *float64
	RuntimeTotal *float64

	Mode     int
	ModeName string

	GridVoltageFault   float64
	GridFrequencyFault float64
	DCInjectionFault   float64
	TemperatureFault   float64
	PV1VoltageFault    float64
	PV2VoltageFault    float64
	GFCFault           float64

	ErrorBits uint32
	Errors    string

	// only reported by status frames longer than 50 bytes
	CTGridPower *float64
}

// OfflineInverterStatus is published when the inverter stopped answering.
func OfflineInverterStatus() InverterStatus {
	nan := math.NaN()
	return InverterStatus{
		Temperature:        nan,
		ACVoltage:          nan,
		ACFrequency:        nan,
		Mode:               MODE_OFFLINE,
		ModeName:           MODE_NAME_OFFLINE,
		GridVoltageFault:   nan,
		GridFrequencyFault: nan,
		DCInjectionFault:   nan,
		TemperatureFault:   nan,
		PV1VoltageFault:    nan,
		PV2VoltageFault:    nan,
		GFCFault:           nan,
	}
}

func (m InverterModel) DecodeStatus(data []byte) (*InverterStatus, error) {
	if !m.validStatusSize(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes for %s status report", ErrInvalidResponseSize, len(data), m.Name)
	}
	u16 := func(i int) uint16 { return binary.BigEndian.Uint16(data[i : i+2]) }
	u32 := func(i int) uint32 { return binary.BigEndian.Uint32(data[i : i+4]) }

	st := &InverterStatus{
		EnergyToday:        float64(u16(2)) * 0.1,
		DC1Voltage:         float64(u16(4)) * 0.1,
		DC2Voltage:         float64(u16(6)) * 0.1,
		DC1Current:         float64(u16(8)) * 0.1,
		DC2Current:         float64(u16(10)) * 0.1,
		ACCurrent:          float64(u16(12)) * 0.1,
		ACVoltage:          float64(u16(14)) * 0.1,
		ACFrequency:        float64(u16(16)) * 0.01,
		ACPower:            float64(u16(18)),
		Mode:               int(uint8(u16(30))),
		GridVoltageFault:   float64(u16(32)) * 0.1,
		GridFrequencyFault: float64(u16(34)) * 0.01,
		DCInjectionFault:   float64(u16(36)) * 0.001,
		TemperatureFault:   float64(u16(38)),
		PV1VoltageFault:    float64(u16(40)) * 0.1,
		PV2VoltageFault:    float64(u16(42)) * 0.1,
		GFCFault:           float64(u16(44)) * 0.001,
		ErrorBits:          binary.LittleEndian.Uint32(data[46:50]),
	}
	if m.SignedTemperature {
		st.Temperature = float64(int16(u16(0)))
	} else {
		st.Temperature = float64(u16(0))
	}
	// register 20 is not used
	if energy := u32(22); energy > 0 || !m.SkipZeroTotals {
		v := float64(energy) * 0.1
		st.EnergyTotal = &v
	}
	if runtime := u32(26); runtime > 0 || !m.SkipZeroTotals {
		v := float64(runtime)
		st.RuntimeTotal = &v
	}
	st.ModeName = m.ModeName(st.Mode)
	st.Errors = m.ErrorText(st.ErrorBits)
	if len(data) > 50 {
		v := float64(int16(u16(50)))
		st.CTGridPower = &v
	}
	return st, nil
}

type InverterInfo struct {
	DeviceType      uint8
	RatedPower      string
	FirmwareVersion string
	ModuleName      string
	Manufacturer    string
	SerialNumber    string
	RatedBusVoltage string
}

func DecodeDeviceInfo(data []byte) (*InverterInfo, error) {
	if len(data) != DEVICE_INFO_SIZE {
		return nil, fmt.Errorf("%w: %d bytes for device info", ErrInvalidResponseSize, len(data))
	}
	str := func(from, size int) string {
		return strings.TrimRight(string(data[from:from+size]), "\x00 ")
	}
	return &InverterInfo{
		DeviceType:      data[0],
		RatedPower:      str(1, 6),
		FirmwareVersion: str(7, 5),
		ModuleName:      str(12, 14),
		Manufacturer:    str(26, 14),
		SerialNumber:    str(40, 14),
		RatedBusVoltage: str(54, 4),
	}, nil
}

// InverterSettings is the grid protection configuration reported by the inverter.
type InverterSettings struct {
	PVStartVoltage             float64
	StartTimeSeconds           uint16
	VacMinProtect              float64
	VacMaxProtect              float64
	FacMinProtect              float64
	FacMaxProtect              float64
	DCILimitMilliAmps          uint16
	Grid10MinAvgProtect        float64
	VacMinSlowProtect          float64
	VacMaxSlowProtect          float64
	FacMinSlowProtect          float64
	FacMaxSlowProtect          float64
	Safety                     uint16
	PowerFactorMode            uint8
	PowerFactorData            uint8
	UpperLimit                 uint8
	LowerLimit                 uint8
	PowerLow                   uint8
	PowerUp                    uint8
	QPowerSet                  uint16
	FreqSetPoint               float64
	FreqDropRate               uint16
	QuVupRate                  uint16
	QuVlowRate                 uint16
	PowerLimitsPercent         uint16
	Wgra                       float64
	Wv2                        float64
	Wv3                        float64
	Wv4                        float64
	QurangeV1                  uint16
	QurangeV4                  uint16
	BVoltPowerLimit            uint16
	PowerManagerEnable         uint16
	GlobalSearchMPPTStartFlag  uint16
	FreqProtectRestrictive     uint16
	QuDelayTimerSeconds        uint16
	FreqActivePowerDelayMillis uint16
}

func DecodeSettings(data []byte) (*InverterSettings, error) {
	if len(data) != SETTINGS_SIZE {
		return nil, fmt.Errorf("%w: %d bytes for config settings", ErrInvalidResponseSize, len(data))
	}
	u16 := func(i int) uint16 { return binary.BigEndian.Uint16(data[i : i+2]) }
	return &InverterSettings{
		PVStartVoltage:             float64(u16(0)) * 0.1,
		StartTimeSeconds:           u16(2),
		VacMinProtect:              float64(u16(4)) * 0.1,
		VacMaxProtect:              float64(u16(6)) * 0.1,
		FacMinProtect:              float64(u16(8)) * 0.01,
		FacMaxProtect:              float64(u16(10)) * 0.01,
		DCILimitMilliAmps:          u16(12),
		Grid10MinAvgProtect:        float64(u16(14)) * 0.1,
		VacMinSlowProtect:          float64(u16(16)) * 0.1,
		VacMaxSlowProtect:          float64(u16(18)) * 0.1,
		FacMinSlowProtect:          float64(u16(20)) * 0.01,
		FacMaxSlowProtect:          float64(u16(22)) * 0.01,
		Safety:                     u16(24),
		PowerFactorMode:            data[26],
		PowerFactorData:            data[27],
		UpperLimit:                 data[28],
		LowerLimit:                 data[29],
		PowerLow:                   data[30],
		PowerUp:                    data[31],
		QPowerSet:                  u16(32),
		FreqSetPoint:               float64(u16(34)) * 0.01,
		FreqDropRate:               u16(36),
		QuVupRate:                  u16(38),
		QuVlowRate:                 u16(40),
		PowerLimitsPercent:         u16(42),
		Wgra:                       float64(u16(44)) * 0.01,
		Wv2:                        float64(u16(46)) * 0.1,
		Wv3:                        float64(u16(48)) * 0.1,
		Wv4:                        float64(u16(50)) * 0.1,
		QurangeV1:                  u16(52),
		QurangeV4:                  u16(54),
		BVoltPowerLimit:            u16(56),
		PowerManagerEnable:         u16(58),
		GlobalSearchMPPTStartFlag:  u16(60),
		FreqProtectRestrictive:     u16(62),
		QuDelayTimerSeconds:        u16(64),
		FreqActivePowerDelayMillis: u16(66),
	}, nil
}
