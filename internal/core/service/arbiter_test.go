package service

import (
	"testing"
	"time"

	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

var testLimits = domain.NumberBounds{Min: 0, Max: 600, Step: 1}

func feedAt(watts float64, at time.Time) *SensorFeedTracker {
	f := &SensorFeedTracker{}
	f.OnReading(watts, at)
	return f
}

func TestTrackerFreshnessBoundary(t *testing.T) {

	assert := assert.New(t)

	t0 := time.Now()
	f := feedAt(120, t0)

	v, fresh := f.Current(t0.Add(5*time.Second), 5*time.Second)
	assert.True(fresh)
	assert.Equal(float64(120), v)

	_, fresh = f.Current(t0.Add(5*time.Second+time.Millisecond), 5*time.Second)
	assert.False(fresh)

	// staleness disabled
	_, fresh = f.Current(t0.Add(time.Hour), 0)
	assert.True(fresh)
}

func TestTrackerWithoutReadingIsStale(t *testing.T) {

	f := &SensorFeedTracker{}
	_, fresh := f.Current(time.Now(), 0)
	assert.False(t, fresh)
	_, ok := f.Last()
	assert.False(t, ok)
}

func TestArbiterEmergencyOffWins(t *testing.T) {

	assert := assert.New(t)

	now := time.Now()
	a := ModeArbiter{Limits: testLimits, InactivityTimeout: 5 * time.Second}
	for _, manual := range []bool{false, true} {
		eval := a.Evaluate(domain.ControlInputs{EmergencyOff: true, ManualMode: manual, ManualPowerDemand: 300}, feedAt(800, now), now)
		assert.Equal(domain.MODE_EMERGENCY_OFF, eval.Mode)
		assert.Equal(float64(0), eval.Output)
		assert.Equal("Off", eval.Label())
	}
}

func TestArbiterManualIgnoresFeed(t *testing.T) {

	assert := assert.New(t)

	now := time.Now()
	a := ModeArbiter{Limits: testLimits, InactivityTimeout: 5 * time.Second}

	// fresh feed
	eval := a.Evaluate(domain.ControlInputs{ManualMode: true, ManualPowerDemand: 250}, feedAt(-900, now), now)
	assert.Equal(domain.MODE_MANUAL, eval.Mode)
	assert.Equal(float64(250), eval.Output)
	assert.False(eval.Stale)

	// stale feed
	eval = a.Evaluate(domain.ControlInputs{ManualMode: true, ManualPowerDemand: 250}, feedAt(-900, now.Add(-time.Minute)), now)
	assert.Equal(float64(250), eval.Output)
	assert.Equal("Manual", eval.Label())

	// clamped to the configured bounds
	eval = a.Evaluate(domain.ControlInputs{ManualMode: true, ManualPowerDemand: 5000}, &SensorFeedTracker{}, now)
	assert.Equal(float64(600), eval.Output)
}

func TestArbiterAutoFollowsFreshFeed(t *testing.T) {

	now := time.Now()
	a := ModeArbiter{Limits: testLimits, InactivityTimeout: 5 * time.Second}
	eval := a.Evaluate(domain.ControlInputs{}, feedAt(-320.5, now.Add(-time.Second)), now)
	assert.Equal(t, domain.Evaluation{Mode: domain.MODE_AUTO, Output: -320.5}, eval)
	assert.Equal(t, "Auto", eval.Label())
}

func TestArbiterStaleFallback(t *testing.T) {

	assert := assert.New(t)

	now := time.Now()
	stale := feedAt(430, now.Add(-10*time.Second))

	zero := ModeArbiter{Limits: testLimits, InactivityTimeout: 5 * time.Second}
	eval := zero.Evaluate(domain.ControlInputs{}, stale, now)
	assert.True(eval.Stale)
	assert.Equal(float64(0), eval.Output)
	assert.Equal("Meter fault", eval.Label())

	hold := ModeArbiter{Limits: testLimits, InactivityTimeout: 5 * time.Second, StaleFallback: domain.STALE_FALLBACK_HOLD_LAST}
	eval = hold.Evaluate(domain.ControlInputs{}, stale, now)
	assert.True(eval.Stale)
	assert.Equal(float64(430), eval.Output)

	// nothing to hold
	eval = hold.Evaluate(domain.ControlInputs{}, &SensorFeedTracker{}, now)
	assert.Equal(float64(0), eval.Output)
}
