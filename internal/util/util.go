package util

import (
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	timeout := 5 * time.Second
	max := 600.0
	initial := 0.0
	gridAddress := uint8(1)
	cfg := config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "solaxgw",
			HADiscoveryTopic: "homeassistant",
		},
		MeterBus: config.MeterBusConfig{
			Serial: config.SerialConfig{
				Device:   "/dev/ttyMETER",
				BaudRate: 9600,
			},
			Gateways: []config.GatewayConfig{
				{
					Id:      "grid",
					Address: &gridAddress,
					PowerSource: config.PowerSourceConfig{
						Type:  config.POWER_SOURCE_MQTT,
						Topic: "home/grid/power",
					},
					InactivityTimeout: &timeout,
					StaleFallback:     string(domain.STALE_FALLBACK_ZERO),
					ManualMode:        config.SwitchConfig{Enabled: true},
					EmergencyPowerOff: config.SwitchConfig{Enabled: true},
					ManualPowerDemand: config.NumberConfig{
						Enabled:      true,
						Max:          &max,
						Step:         1,
						InitialValue: &initial,
					},
				},
			},
		},
		InverterBus: config.InverterBusConfig{
			Enabled: true,
			Serial: config.SerialConfig{
				Device:   "/dev/ttyINVERTER",
				BaudRate: 9600,
			},
			Inverters: []config.InverterConfig{
				{
					Id:             "inverter",
					Address:        0x0A,
					SerialNumber:   "3132333435363737363534333231",
					Model:          "x1_mini",
					UpdateInterval: 30 * time.Second,
				},
			},
		},
		StateStore: config.StateStoreConfig{
			Type: "memory",
		},
		Port: 8080,
	}
	return cfg
}
