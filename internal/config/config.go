package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/service"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	POWER_SOURCE_MQTT    = "mqtt"
	POWER_SOURCE_SUNSPEC = "sunspec"

	DEFAULT_INACTIVITY_TIMEOUT      = 5 * time.Second
	DEFAULT_UPDATE_INTERVAL         = 30 * time.Second
	DEFAULT_SUNSPEC_POLL_INTERVAL   = 2 * time.Second
	DEFAULT_MANUAL_POWER_DEMAND_MAX = 600
)

type Config struct {
	LogLevel     zapcore.Level
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	MeterBus     MeterBusConfig     `mapstructure:"meter_bus"`
	InverterBus  InverterBusConfig  `mapstructure:"inverter_bus"`
	StateStore   StateStoreConfig   `mapstructure:"state_store"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	ModbusMirror ModbusMirrorConfig `mapstructure:"modbus_mirror"`
	Port         uint               `mapstructure:"port"`
	HttpLog      bool               `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type SerialConfig struct {
	Device   string
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	RS485    bool          `mapstructure:"rs485"`
	FrameGap time.Duration `mapstructure:"frame_gap"`
}

type MeterBusConfig struct {
	Serial   SerialConfig    `mapstructure:",squash"`
	Gateways []GatewayConfig `mapstructure:"gateways"`
}

type GatewayConfig struct {
	Id                string
	Address           *uint8
	PowerSource       PowerSourceConfig `mapstructure:"power_source"`
	InactivityTimeout *time.Duration    `mapstructure:"inactivity_timeout"`
	StaleFallback     string            `mapstructure:"stale_fallback"`
	ManualMode        SwitchConfig      `mapstructure:"manual_mode"`
	EmergencyPowerOff SwitchConfig      `mapstructure:"emergency_power_off"`
	ManualPowerDemand NumberConfig      `mapstructure:"manual_power_demand"`
}

type PowerSourceConfig struct {
	Type         string
	Topic        string
	Host         string
	Port         uint
	UnitId       uint8         `mapstructure:"unit_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration
	// positive values must mean import from the grid
	Invert bool
}

type SwitchConfig struct {
	Enabled     bool
	RestoreMode string `mapstructure:"restore_mode"`
}

type NumberConfig struct {
	Enabled      bool
	Min          float64  `mapstructure:"min_value"`
	Max          *float64 `mapstructure:"max_value"`
	Step         float64
	InitialValue *float64 `mapstructure:"initial_value"`
	RestoreValue bool     `mapstructure:"restore_value"`
}

type InverterBusConfig struct {
	Enabled        bool
	Serial         SerialConfig     `mapstructure:",squash"`
	AdoptAnySerial bool             `mapstructure:"adopt_any_serial"`
	Inverters      []InverterConfig `mapstructure:"inverters"`
}

type InverterConfig struct {
	Id             string
	Address        uint8
	SerialNumber   string        `mapstructure:"serial_number"`
	Model          string        `mapstructure:"model"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

type StateStoreConfig struct {
	Type string
	Path string
}

type TelemetryConfig struct {
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
	StatsD   StatsDConfig   `mapstructure:"statsd"`
}

type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string
	Org    string
	Bucket string
}

func (c InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

type StatsDConfig struct {
	Addr      string
	Namespace string
	Tags      []string
}

func (c StatsDConfig) Enabled() bool {
	return c.Addr != ""
}

type ModbusMirrorConfig struct {
	Enabled bool
	Port    uint
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

const redacted = "*redacted*"

// Redacted returns a copy of the configuration without credentials.
func (cfg Config) Redacted() Config {
	if cfg.MQTT.Username != "" {
		cfg.MQTT.Username = redacted
	}
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = redacted
	}
	if cfg.Telemetry.InfluxDB.Token != "" {
		cfg.Telemetry.InfluxDB.Token = redacted
	}
	return cfg
}

// RedactedYAML renders the configuration without credentials, for the startup log.
func (cfg Config) RedactedYAML() (string, error) {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var entityIdRegexp = regexp.MustCompile("^[a-z0-9_]+$")

// ApplyDefaults fills the per gateway and per inverter defaults that cannot be expressed as viper defaults.
func (cfg *Config) ApplyDefaults() {
	for i := range cfg.MeterBus.Gateways {
		gw := &cfg.MeterBus.Gateways[i]
		if gw.Address == nil {
			address := uint8(solax_modbus.DEFAULT_METER_ADDRESS)
			gw.Address = &address
		}
		if gw.InactivityTimeout == nil {
			timeout := DEFAULT_INACTIVITY_TIMEOUT
			gw.InactivityTimeout = &timeout
		}
		if gw.StaleFallback == "" {
			gw.StaleFallback = string(domain.STALE_FALLBACK_ZERO)
		}
		if gw.PowerSource.Type == "" {
			gw.PowerSource.Type = POWER_SOURCE_MQTT
		}
		if gw.PowerSource.Type == POWER_SOURCE_SUNSPEC {
			if gw.PowerSource.Port == 0 {
				gw.PowerSource.Port = 502
			}
			if gw.PowerSource.PollInterval == 0 {
				gw.PowerSource.PollInterval = DEFAULT_SUNSPEC_POLL_INTERVAL
			}
			if gw.PowerSource.Timeout == 0 {
				gw.PowerSource.Timeout = time.Second
			}
		}
		num := &gw.ManualPowerDemand
		if num.Max == nil {
			max := float64(DEFAULT_MANUAL_POWER_DEMAND_MAX)
			num.Max = &max
		}
		if num.Step == 0 {
			num.Step = 1
		}
		if num.InitialValue == nil {
			initial := num.Min
			num.InitialValue = &initial
		}
	}
	for i := range cfg.InverterBus.Inverters {
		inv := &cfg.InverterBus.Inverters[i]
		if inv.Address == 0 {
			inv.Address = solax_modbus.DEFAULT_INVERTER_ADDRESS
		}
		if inv.SerialNumber == "" {
			inv.SerialNumber = solax_modbus.DEFAULT_SERIAL_NUMBER
		}
		if inv.Model == "" {
			inv.Model = solax_modbus.MODEL_X1_MINI
		}
		if inv.UpdateInterval == 0 {
			inv.UpdateInterval = DEFAULT_UPDATE_INTERVAL
		}
	}
}

// Validate checks the configuration and normalizes serial numbers. ApplyDefaults must run first.
func (cfg *Config) Validate() error {

	ids := map[string]bool{}
	checkId := func(kind, id string) error {
		if !entityIdRegexp.MatchString(id) {
			return fmt.Errorf("%s id %q can only contain lowercase letters, numbers and underscores", kind, id)
		}
		if ids[id] {
			return fmt.Errorf("duplicated id %q", id)
		}
		ids[id] = true
		return nil
	}

	if len(cfg.MeterBus.Gateways) > 0 && cfg.MeterBus.Serial.Device == "" {
		return errors.New("config param meter_bus.device is required")
	}
	meterAddresses := map[uint8]string{}
	for i := range cfg.MeterBus.Gateways {
		gw := &cfg.MeterBus.Gateways[i]
		if err := checkId("gateway", gw.Id); err != nil {
			return err
		}
		if other, ok := meterAddresses[*gw.Address]; ok {
			return fmt.Errorf("gateways %s and %s share meter bus address %d", other, gw.Id, *gw.Address)
		}
		meterAddresses[*gw.Address] = gw.Id

		switch gw.PowerSource.Type {
		case POWER_SOURCE_MQTT:
			if gw.PowerSource.Topic == "" {
				return fmt.Errorf("gateway %s: power_source.topic is required", gw.Id)
			}
		case POWER_SOURCE_SUNSPEC:
			if gw.PowerSource.Host == "" {
				return fmt.Errorf("gateway %s: power_source.host is required", gw.Id)
			}
			if gw.PowerSource.PollInterval < 500*time.Millisecond {
				return fmt.Errorf("gateway %s: power_source.poll_interval should be >= 500ms", gw.Id)
			}
		default:
			return fmt.Errorf("gateway %s: unknown power_source.type %q", gw.Id, gw.PowerSource.Type)
		}

		if *gw.InactivityTimeout < 0 {
			return fmt.Errorf("gateway %s: inactivity_timeout cannot be negative", gw.Id)
		}
		switch domain.StaleFallback(gw.StaleFallback) {
		case domain.STALE_FALLBACK_ZERO, domain.STALE_FALLBACK_HOLD_LAST:
		default:
			return fmt.Errorf("gateway %s: unknown stale_fallback %q", gw.Id, gw.StaleFallback)
		}
		if _, err := domain.ParseRestoreMode(gw.ManualMode.RestoreMode); err != nil {
			return fmt.Errorf("gateway %s: manual_mode: %w", gw.Id, err)
		}
		if _, err := domain.ParseRestoreMode(gw.EmergencyPowerOff.RestoreMode); err != nil {
			return fmt.Errorf("gateway %s: emergency_power_off: %w", gw.Id, err)
		}
		num := gw.ManualPowerDemand
		if num.Min > *num.Max {
			return fmt.Errorf("gateway %s: manual_power_demand.min_value must be <= max_value", gw.Id)
		}
		if num.Step <= 0 {
			return fmt.Errorf("gateway %s: manual_power_demand.step must be > 0", gw.Id)
		}
		if *num.InitialValue < num.Min || *num.InitialValue > *num.Max {
			return fmt.Errorf("gateway %s: manual_power_demand.initial_value out of range", gw.Id)
		}
	}

	if !cfg.InverterBus.Enabled {
		return nil
	}
	if cfg.InverterBus.Serial.Device == "" {
		return errors.New("config param inverter_bus.device is required")
	}
	if cfg.InverterBus.Serial.Device == cfg.MeterBus.Serial.Device {
		return errors.New("meter_bus and inverter_bus cannot share a serial device")
	}
	inverterAddresses := map[uint8]string{}
	for i := range cfg.InverterBus.Inverters {
		inv := &cfg.InverterBus.Inverters[i]
		if err := checkId("inverter", inv.Id); err != nil {
			return err
		}
		if other, ok := inverterAddresses[inv.Address]; ok {
			return fmt.Errorf("inverters %s and %s share address %d", other, inv.Id, inv.Address)
		}
		inverterAddresses[inv.Address] = inv.Id
		sn, err := solax_modbus.NormalizeSerialNumber(inv.SerialNumber)
		if err != nil {
			return fmt.Errorf("inverter %s: %w", inv.Id, err)
		}
		inv.SerialNumber = sn
		if _, err := solax_modbus.InverterModelByName(inv.Model); err != nil {
			return fmt.Errorf("inverter %s: %w", inv.Id, err)
		}
		if inv.UpdateInterval < time.Second {
			return fmt.Errorf("inverter %s: update_interval should be >= 1s", inv.Id)
		}
	}
	return nil
}

func (gw GatewayConfig) DemandLimits() domain.NumberBounds {
	return domain.NumberBounds{
		Min:  gw.ManualPowerDemand.Min,
		Max:  *gw.ManualPowerDemand.Max,
		Step: gw.ManualPowerDemand.Step,
	}
}

func (gw GatewayConfig) ServiceConfig() service.GatewayConfig {
	return service.GatewayConfig{
		Id:                  gw.Id,
		Address:             *gw.Address,
		InactivityTimeout:   *gw.InactivityTimeout,
		StaleFallback:       domain.StaleFallback(gw.StaleFallback),
		DemandLimits:        gw.DemandLimits(),
		ManualModeEnabled:   gw.ManualMode.Enabled,
		EmergencyOffEnabled: gw.EmergencyPowerOff.Enabled,
		ManualDemandEnabled: gw.ManualPowerDemand.Enabled,
	}
}

// RestoreConfig must only be called on a validated config.
func (gw GatewayConfig) RestoreConfig() service.GatewayRestoreConfig {
	manual, _ := domain.ParseRestoreMode(gw.ManualMode.RestoreMode)
	emergency, _ := domain.ParseRestoreMode(gw.EmergencyPowerOff.RestoreMode)
	return service.GatewayRestoreConfig{
		ManualMode:         manual,
		EmergencyOff:       emergency,
		DemandInitialValue: *gw.ManualPowerDemand.InitialValue,
		DemandRestoreValue: gw.ManualPowerDemand.RestoreValue,
	}
}
