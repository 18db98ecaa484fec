package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/solaxgw2mqtt/internal/adapter/actor"
	"github.com/berfenger/solaxgw2mqtt/internal/adapter/serial"
	"github.com/berfenger/solaxgw2mqtt/internal/adapter/store"
	"github.com/berfenger/solaxgw2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/actor"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
	"github.com/berfenger/solaxgw2mqtt/internal/server"
	"github.com/berfenger/solaxgw2mqtt/internal/util/actorutil"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	stateStore, err := store.NewStateStore(cfg.StateStore.Type, cfg.StateStore.Path, logger)
	if err != nil {
		logger.Fatal("could not open state store", zap.Error(err))
	}
	defer stateStore.Close()

	deps := actor.MasterDependencies{
		MQTTActorProvider: mqttActorProvider(cfg, logger),
		LinkProvider:      linkProvider(cfg, logger),
		ACMeterProvider:   adactor.SunSpecMeterProvider(logger),
		Store:             stateStore,
		TelemetrySinks:    telemetrySinks(cfg, logger),
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, deps, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Fatal("could not start master actor", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.StopFuture(pid).Wait()
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SOLAXGW_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SOLAXGW_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("solaxgw")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func linkProvider(cfg *config.Config, logger *zap.Logger) actor.FrameLinkProvider {
	return func(bus string) port.FrameLink {
		if bus == domain.ACTOR_ID_INVERTER_BUS {
			return serial.NewLink(cfg.InverterBus.Serial, solax_modbus.AA55Framer{}, logger)
		}
		return serial.NewLink(cfg.MeterBus.Serial, solax_modbus.RTURequestFramer{}, logger)
	}
}

// telemetrySinks connects the configured sinks. A sink that cannot be reached is skipped.
func telemetrySinks(cfg *config.Config, logger *zap.Logger) []port.TelemetrySink {
	var sinks []port.TelemetrySink
	if cfg.Telemetry.InfluxDB.Enabled() {
		sink, err := telemetry.NewInfluxDBSink(cfg.Telemetry.InfluxDB, logger)
		if err != nil {
			logger.Error("influxdb telemetry disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Telemetry.StatsD.Enabled() {
		sink, err := telemetry.NewStatsDSink(cfg.Telemetry.StatsD)
		if err != nil {
			logger.Error("statsd telemetry disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "solaxgw")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("meter_bus.baud_rate", 9600)
	viper.SetDefault("meter_bus.data_bits", 8)
	viper.SetDefault("meter_bus.stop_bits", 1)
	viper.SetDefault("meter_bus.parity", "N")
	viper.SetDefault("inverter_bus.enabled", false)
	viper.SetDefault("inverter_bus.baud_rate", 9600)
	viper.SetDefault("inverter_bus.data_bits", 8)
	viper.SetDefault("inverter_bus.stop_bits", 1)
	viper.SetDefault("inverter_bus.parity", "N")
	viper.SetDefault("state_store.type", store.STORE_TYPE_MEMORY)
	viper.SetDefault("state_store.path", "solaxgw.db")
	viper.SetDefault("telemetry.statsd.namespace", "solaxgw.")
	viper.SetDefault("modbus_mirror.enabled", false)
	viper.SetDefault("modbus_mirror.port", 5020)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	dump, err := cfg.RedactedYAML()
	if err != nil {
		slog.Info("Using", "config", cfg.Redacted())
		return
	}
	slog.Info("Using config\n" + dump)
}
