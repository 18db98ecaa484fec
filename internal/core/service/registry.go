package service

import (
	"errors"
	"fmt"
	"slices"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

var (
	ErrAddressConflict = errors.New("address already registered")
	ErrUnknownAddress  = errors.New("no device registered at address")
)

type BusHandler[Req, Resp any] interface {
	Handle(req Req) (Resp, error)
}

type BusHandlerFunc[Req, Resp any] func(req Req) (Resp, error)

func (f BusHandlerFunc[Req, Resp]) Handle(req Req) (Resp, error) {
	return f(req)
}

type registrySlot[Req, Resp any] struct {
	device  domain.BusDevice
	handler BusHandler[Req, Resp]
}

// BusRegistry maps bus addresses to the device answering on them. Each physical bus owns one registry.
// It is not safe for concurrent use; the bus actor owning it serializes all calls.
type BusRegistry[Req, Resp any] struct {
	bus   string
	slots map[uint8]registrySlot[Req, Resp]
}

func NewBusRegistry[Req, Resp any](bus string) *BusRegistry[Req, Resp] {
	return &BusRegistry[Req, Resp]{
		bus:   bus,
		slots: make(map[uint8]registrySlot[Req, Resp]),
	}
}

func (r *BusRegistry[Req, Resp]) Bus() string {
	return r.bus
}

func (r *BusRegistry[Req, Resp]) Register(device domain.BusDevice, handler BusHandler[Req, Resp]) error {
	if current, ok := r.slots[device.Address]; ok {
		return fmt.Errorf("%w: %s address %d is used by %s, cannot register %s",
			ErrAddressConflict, r.bus, device.Address, current.device.Id, device.Id)
	}
	r.slots[device.Address] = registrySlot[Req, Resp]{
		device:  device,
		handler: handler,
	}
	return nil
}

func (r *BusRegistry[Req, Resp]) Dispatch(address uint8, req Req) (Resp, error) {
	slot, ok := r.slots[address]
	if !ok {
		var empty Resp
		return empty, fmt.Errorf("%w: %s address %d", ErrUnknownAddress, r.bus, address)
	}
	return slot.handler.Handle(req)
}

func (r *BusRegistry[Req, Resp]) Lookup(address uint8) (domain.BusDevice, bool) {
	slot, ok := r.slots[address]
	return slot.device, ok
}

func (r *BusRegistry[Req, Resp]) LookupById(id string) (domain.BusDevice, bool) {
	for _, slot := range r.slots {
		if slot.device.Id == id {
			return slot.device, true
		}
	}
	return domain.BusDevice{}, false
}

func (r *BusRegistry[Req, Resp]) FindBySerialNumber(sn solax_modbus.SerialNumber) (domain.BusDevice, bool) {
	for _, slot := range r.slots {
		if slot.device.SerialNumber != nil && *slot.device.SerialNumber == sn {
			return slot.device, true
		}
	}
	return domain.BusDevice{}, false
}

// Devices returns the registered devices ordered by address.
func (r *BusRegistry[Req, Resp]) Devices() []domain.BusDevice {
	devices := make([]domain.BusDevice, 0, len(r.slots))
	for _, slot := range r.slots {
		devices = append(devices, slot.device)
	}
	slices.SortFunc(devices, func(a, b domain.BusDevice) int {
		return int(a.Address) - int(b.Address)
	})
	return devices
}

func (r *BusRegistry[Req, Resp]) Len() int {
	return len(r.slots)
}
