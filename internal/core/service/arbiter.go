package service

import (
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
	"github.com/berfenger/solaxgw2mqtt/internal/util/mathutil"
)

// ModeArbiter decides the power demand reported to the inverter.
// Precedence is EMERGENCY_OFF, then MANUAL, then AUTO.
type ModeArbiter struct {
	Limits            domain.NumberBounds
	InactivityTimeout time.Duration
	StaleFallback     domain.StaleFallback
}

func (a ModeArbiter) Evaluate(controls domain.ControlInputs, feed *SensorFeedTracker, now time.Time) domain.Evaluation {
	if controls.EmergencyOff {
		return domain.Evaluation{Mode: domain.MODE_EMERGENCY_OFF, Output: 0}
	}
	if controls.ManualMode {
		return domain.Evaluation{
			Mode:   domain.MODE_MANUAL,
			Output: mathutil.Clamp(controls.ManualPowerDemand, a.Limits.Min, a.Limits.Max),
		}
	}
	if watts, fresh := feed.Current(now, a.InactivityTimeout); fresh {
		return domain.Evaluation{Mode: domain.MODE_AUTO, Output: watts}
	}
	eval := domain.Evaluation{Mode: domain.MODE_AUTO, Output: 0, Stale: true}
	if a.StaleFallback == domain.STALE_FALLBACK_HOLD_LAST {
		if last, ok := feed.Last(); ok {
			eval.Output = last.Watts
		}
	}
	return eval
}
