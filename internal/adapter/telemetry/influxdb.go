package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	MEASUREMENT_GATEWAY  = "solaxgw_gateway"
	MEASUREMENT_INVERTER = "solaxgw_inverter"

	influxConnectTimeout = 5 * time.Second
	influxBatchSize      = 100
	influxFlushMillis    = 10_000
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

type InfluxDBSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
}

// NewInfluxDBSink connects to InfluxDB and returns a sink backed by the non-blocking write API.
func NewInfluxDBSink(cfg config.InfluxDBConfig, logger *zap.Logger) (*InfluxDBSink, error) {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(influxBatchSize).
			SetFlushInterval(influxFlushMillis),
	)

	ctx, cancel := context.WithTimeout(context.Background(), influxConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	sink := &InfluxDBSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
	go sink.handleWriteErrors(sink.writeAPI.Errors())
	return sink, nil
}

func (s *InfluxDBSink) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		s.logger.Warn("influxdb write failed", zap.Error(err))
	}
}

func (s *InfluxDBSink) Name() string {
	return "influxdb"
}

func (s *InfluxDBSink) GatewayPolled(event domain.GatewayPolledEvent) error {
	s.writeAPI.WritePoint(GatewayPoint(event))
	return nil
}

func (s *InfluxDBSink) InverterUpdated(event domain.InverterUpdatedEvent) error {
	s.writeAPI.WritePoint(InverterPoint(event))
	return nil
}

func (s *InfluxDBSink) Close() error {
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

func GatewayPoint(event domain.GatewayPolledEvent) *write.Point {
	snap := event.Snapshot
	fields := map[string]any{
		"power_demand": snap.Output,
		"mode":         int(snap.OperatingMode),
		"stale":        snap.Stale,
		"polls":        snap.Polls,
	}
	if snap.LastReading != nil {
		fields["grid_power"] = *snap.LastReading
	}
	return write.NewPoint(MEASUREMENT_GATEWAY,
		map[string]string{
			"gateway": snap.Id,
			"address": fmt.Sprintf("%d", snap.Address),
		},
		fields,
		event.At)
}

func InverterPoint(event domain.InverterUpdatedEvent) *write.Point {
	return write.NewPoint(MEASUREMENT_INVERTER,
		map[string]string{
			"inverter": event.InverterId,
		},
		map[string]any{
			"online":   event.Online,
			"ac_power": event.ACPower,
			"mode":     event.Mode,
		},
		event.At)
}

var _ port.TelemetrySink = &InfluxDBSink{}
