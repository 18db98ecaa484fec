package port

import "github.com/berfenger/solaxgw2mqtt/internal/core/domain"

// TelemetrySink records gateway and inverter samples into an external metrics system.
type TelemetrySink interface {
	Name() string
	GatewayPolled(event domain.GatewayPolledEvent) error
	InverterUpdated(event domain.InverterUpdatedEvent) error
	Close() error
}
