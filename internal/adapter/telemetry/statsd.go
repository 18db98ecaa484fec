package telemetry

import (
	"github.com/berfenger/solaxgw2mqtt/internal/config"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"

	"github.com/DataDog/datadog-go/statsd"
)

// StatsDClient is the subset of the dogstatsd client used by the sink.
type StatsDClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

type StatsDSink struct {
	client StatsDClient
}

func NewStatsDSink(cfg config.StatsDConfig) (*StatsDSink, error) {
	client, err := statsd.New(cfg.Addr)
	if err != nil {
		return nil, err
	}
	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags
	return &StatsDSink{client: client}, nil
}

func NewStatsDSinkWithClient(client StatsDClient) *StatsDSink {
	return &StatsDSink{client: client}
}

func (s *StatsDSink) Name() string {
	return "statsd"
}

func (s *StatsDSink) GatewayPolled(event domain.GatewayPolledEvent) error {
	snap := event.Snapshot
	tags := []string{"gateway:" + snap.Id}
	if err := s.client.Gauge("gateway.power_demand", snap.Output, tags, 1); err != nil {
		return err
	}
	if err := s.client.Gauge("gateway.mode", float64(snap.OperatingMode), tags, 1); err != nil {
		return err
	}
	if err := s.client.Gauge("gateway.stale", boolGauge(snap.Stale), tags, 1); err != nil {
		return err
	}
	if snap.LastReading != nil {
		return s.client.Gauge("gateway.grid_power", *snap.LastReading, tags, 1)
	}
	return nil
}

func (s *StatsDSink) InverterUpdated(event domain.InverterUpdatedEvent) error {
	tags := []string{"inverter:" + event.InverterId}
	if err := s.client.Gauge("inverter.online", boolGauge(event.Online), tags, 1); err != nil {
		return err
	}
	return s.client.Gauge("inverter.ac_power", event.ACPower, tags, 1)
}

func (s *StatsDSink) Close() error {
	return s.client.Close()
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}

var _ port.TelemetrySink = &StatsDSink{}
