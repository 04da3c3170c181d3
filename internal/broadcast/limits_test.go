package broadcast

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestAdmissionControl_GlobalLimit(t *testing.T) {
	a := NewAdmissionControl(LimitsConfig{MaxConnections: 2, MaxPerIP: 10, ConnectionRate: 100, ConnectionBurst: 100}, clockwork.NewFakeClock())

	ok, _ := a.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = a.Acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := a.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	a.Release("10.0.0.1")
	ok, _ = a.Acquire("10.0.0.3")
	assert.True(t, ok)
	assert.Equal(t, int64(2), a.Current())
}

func TestAdmissionControl_PerIPLimit(t *testing.T) {
	a := NewAdmissionControl(LimitsConfig{MaxConnections: 100, MaxPerIP: 2, ConnectionRate: 100, ConnectionBurst: 100}, clockwork.NewFakeClock())

	a.Acquire("10.0.0.1")
	a.Acquire("10.0.0.1")
	ok, reason := a.Acquire("10.0.0.1")

	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(2), a.Current(), "a per-IP rejection must not leak a global slot")

	ok, _ = a.Acquire("10.0.0.2")
	assert.True(t, ok)

	a.Release("10.0.0.1")
	a.Release("10.0.0.1")
	assert.Equal(t, 0, a.CountForIP("10.0.0.1"))
}

func TestAdmissionControl_RateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewAdmissionControl(LimitsConfig{MaxConnections: 100, MaxPerIP: 100, ConnectionRate: 1, ConnectionBurst: 2}, clock)

	for n := 0; n < 2; n++ {
		ok, _ := a.Acquire("10.0.0.1")
		assert.True(t, ok)
	}
	ok, reason := a.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)

	ok, _ = a.Acquire("10.0.0.2")
	assert.True(t, ok, "buckets are per IP")

	clock.Advance(time.Second)
	ok, _ = a.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestAdmissionControl_SweepsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewAdmissionControl(LimitsConfig{ConnectionRate: 10, ConnectionBurst: 10}, clock)

	a.Acquire("10.0.0.1")
	a.Acquire("10.0.0.2")
	assert.Equal(t, 2, a.trackedBuckets())

	clock.Advance(limiterIdleTTL + time.Minute)
	a.Acquire("10.0.0.3")
	assert.Equal(t, 1, a.trackedBuckets())
}

func TestAdmissionControl_ZeroMeansUnlimited(t *testing.T) {
	a := NewAdmissionControl(LimitsConfig{ConnectionRate: 1000, ConnectionBurst: 1000}, clockwork.NewFakeClock())
	for n := 0; n < 100; n++ {
		ok, _ := a.Acquire("10.0.0.1")
		assert.True(t, ok)
	}
}

func TestAdmissionControl_ZeroRateDisablesRateLimit(t *testing.T) {
	a := NewAdmissionControl(LimitsConfig{}, clockwork.NewFakeClock())
	for n := 0; n < 100; n++ {
		ok, _ := a.Acquire("10.0.0.1")
		assert.True(t, ok)
	}
	assert.Equal(t, int64(100), a.Current())
}
