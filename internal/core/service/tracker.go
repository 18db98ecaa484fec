package service

import (
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"
)

// SensorFeedTracker keeps the latest power reading of a feed and decides whether it is still fresh.
type SensorFeedTracker struct {
	last *domain.PowerReading
}

func (t *SensorFeedTracker) OnReading(watts float64, now time.Time) {
	t.last = &domain.PowerReading{
		Watts:      watts,
		ObservedAt: now,
	}
}

// Current returns the latest reading if it is not older than timeout.
// A timeout <= 0 disables staleness, any reading is then considered fresh.
func (t *SensorFeedTracker) Current(now time.Time, timeout time.Duration) (float64, bool) {
	if t.last == nil {
		return 0, false
	}
	if timeout > 0 && now.Sub(t.last.ObservedAt) > timeout {
		return 0, false
	}
	return t.last.Watts, true
}

func (t *SensorFeedTracker) Last() (domain.PowerReading, bool) {
	if t.last == nil {
		return domain.PowerReading{}, false
	}
	return *t.last, true
}
