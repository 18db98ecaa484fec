package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"
)

// Number of unanswered status queries before the inverter is reported offline and a discovery is broadcast.
const REDISCOVERY_THRESHOLD = 5

var (
	ErrSerialMismatch     = errors.New("announced serial number does not match any configured inverter")
	ErrUnexpectedFunction = errors.New("unexpected function code")
)

type UpdateAction int

const (
	UPDATE_QUERY_STATUS UpdateAction = iota
	UPDATE_REDISCOVER
)

type InverterReport struct {
	Function uint8
	Status   *solax_modbus.InverterStatus
	Info     *solax_modbus.InverterInfo
	Settings *solax_modbus.InverterSettings
}

// InverterMonitor tracks one inverter polled over the AA55 bus.
type InverterMonitor struct {
	id       string
	address  uint8
	serial   solax_modbus.SerialNumber
	model    solax_modbus.InverterModel
	missed   int
	online   bool
	lastSeen *time.Time
	status   *solax_modbus.InverterStatus
	info     *solax_modbus.InverterInfo
	settings *solax_modbus.InverterSettings
}

func NewInverterMonitor(id string, address uint8, serial solax_modbus.SerialNumber, model solax_modbus.InverterModel) *InverterMonitor {
	return &InverterMonitor{
		id:      id,
		address: address,
		serial:  serial,
		model:   model,
		// start by announcing the address
		missed: REDISCOVERY_THRESHOLD,
	}
}

func (m *InverterMonitor) Id() string {
	return m.id
}

func (m *InverterMonitor) Address() uint8 {
	return m.address
}

func (m *InverterMonitor) Model() solax_modbus.InverterModel {
	return m.model
}

func (m *InverterMonitor) SerialNumber() solax_modbus.SerialNumber {
	return m.serial
}

func (m *InverterMonitor) Device() domain.BusDevice {
	sn := m.serial
	return domain.BusDevice{
		Id:           m.id,
		Address:      m.address,
		SerialNumber: &sn,
		Kind:         domain.DEVICE_KIND_INVERTER,
	}
}

// OnUpdate is called on every update interval. When too many queries went unanswered the
// inverter is marked offline and the returned status must be published.
func (m *InverterMonitor) OnUpdate() (UpdateAction, *solax_modbus.InverterStatus) {
	if m.missed >= REDISCOVERY_THRESHOLD {
		m.missed = 0
		m.online = false
		offline := solax_modbus.OfflineInverterStatus()
		m.status = &offline
		return UPDATE_REDISCOVER, &offline
	}
	m.missed++
	return UPDATE_QUERY_STATUS, nil
}

// Handle decodes a report received from the inverter.
func (m *InverterMonitor) Handle(msg solax_modbus.Message) (InverterReport, error) {
	report := InverterReport{Function: msg.Function}
	switch msg.Function {
	case solax_modbus.FUNC_STATUS_REPORT:
		st, err := m.model.DecodeStatus(msg.Data)
		if err != nil {
			return report, err
		}
		m.status = st
		m.online = true
		report.Status = st
	case solax_modbus.FUNC_DEVICE_INFO_REPORT:
		info, err := solax_modbus.DecodeDeviceInfo(msg.Data)
		if err != nil {
			return report, err
		}
		m.info = info
		report.Info = info
	case solax_modbus.FUNC_SETTINGS_REPORT:
		settings, err := solax_modbus.DecodeSettings(msg.Data)
		if err != nil {
			return report, err
		}
		m.settings = settings
		report.Settings = settings
	default:
		return report, fmt.Errorf("%w: 0x%02X", ErrUnexpectedFunction, msg.Function)
	}
	m.missed = 0
	now := time.Now()
	m.lastSeen = &now
	return report, nil
}

func (m *InverterMonitor) State() domain.GetInverterStateResponse {
	return domain.GetInverterStateResponse{
		Online:   m.online,
		Status:   m.status,
		Info:     m.info,
		Settings: m.settings,
		LastSeen: m.lastSeen,
	}
}

// ResolveAnnouncement picks the device that must take the address offered to an announced serial number.
// When adoptAny is set and a single inverter is configured, that inverter takes any serial number.
func ResolveAnnouncement[Req, Resp any](registry *BusRegistry[Req, Resp], sn solax_modbus.SerialNumber, adoptAny bool) (domain.BusDevice, error) {
	if device, ok := registry.FindBySerialNumber(sn); ok {
		return device, nil
	}
	if adoptAny && registry.Len() == 1 {
		return registry.Devices()[0], nil
	}
	return domain.BusDevice{}, fmt.Errorf("%w: %s", ErrSerialMismatch, sn)
}
