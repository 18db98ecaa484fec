package service

import (
	"errors"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
)

type GatewayRestoreConfig struct {
	ManualMode         domain.RestoreMode
	EmergencyOff       domain.RestoreMode
	DemandInitialValue float64
	DemandRestoreValue bool
}

// RestoreControls computes the initial controls of a gateway. Values that cannot be read from the
// store fall back to their defaults, the returned error reports them.
func RestoreControls(store port.EntityStateStore, cfg GatewayConfig, restore GatewayRestoreConfig) (domain.ControlInputs, error) {
	var errs []error

	loadSwitch := func(feature domain.GatewayFeature) *bool {
		if store == nil {
			return nil
		}
		v, err := store.LoadSwitch(domain.GatewayEntityId(cfg.Id, feature))
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		return v
	}

	controls := domain.ControlInputs{
		ManualPowerDemand: restore.DemandInitialValue,
	}
	if cfg.ManualModeEnabled {
		controls.ManualMode = restore.ManualMode.Resolve(loadSwitch(domain.FEATURE_MANUAL_MODE))
	}
	if cfg.EmergencyOffEnabled {
		controls.EmergencyOff = restore.EmergencyOff.Resolve(loadSwitch(domain.FEATURE_EMERGENCY_POWER_OFF))
	}
	if cfg.ManualDemandEnabled && restore.DemandRestoreValue && store != nil {
		v, err := store.LoadNumber(domain.GatewayEntityId(cfg.Id, domain.FEATURE_MANUAL_POWER_DEMAND))
		if err != nil {
			errs = append(errs, err)
		} else if v != nil {
			controls.ManualPowerDemand = *v
		}
	}
	return controls, errors.Join(errs...)
}

// PersistControls stores the controls of a gateway that are enabled.
func PersistControls(store port.EntityStateStore, cfg GatewayConfig, controls domain.ControlInputs) error {
	if store == nil {
		return nil
	}
	var errs []error
	if cfg.ManualModeEnabled {
		errs = append(errs, store.SaveSwitch(domain.GatewayEntityId(cfg.Id, domain.FEATURE_MANUAL_MODE), controls.ManualMode))
	}
	if cfg.EmergencyOffEnabled {
		errs = append(errs, store.SaveSwitch(domain.GatewayEntityId(cfg.Id, domain.FEATURE_EMERGENCY_POWER_OFF), controls.EmergencyOff))
	}
	if cfg.ManualDemandEnabled {
		errs = append(errs, store.SaveNumber(domain.GatewayEntityId(cfg.Id, domain.FEATURE_MANUAL_POWER_DEMAND), controls.ManualPowerDemand))
	}
	return errors.Join(errs...)
}
