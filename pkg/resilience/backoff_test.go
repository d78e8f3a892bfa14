package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func within(t *testing.T, got, want time.Duration, jitter float64) {
	t.Helper()
	spread := time.Duration(float64(want) * jitter)
	assert.GreaterOrEqual(t, got, want-spread, "delay %v below %v-%v", got, want, spread)
	assert.LessOrEqual(t, got, want+spread, "delay %v above %v+%v", got, want, spread)
}

func TestExponentialBackoff_NoJitterIsExact(t *testing.T) {
	b := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{30, time.Second},
		{-1, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestConflictBackoff(t *testing.T) {
	b := ConflictBackoff()
	for i := 0; i < 50; i++ {
		within(t, b.NextDelay(0), 10*time.Millisecond, 0.5)
		within(t, b.NextDelay(2), 40*time.Millisecond, 0.5)
		within(t, b.NextDelay(10), 200*time.Millisecond, 0.5)
	}
}

func TestOutboxBackoff(t *testing.T) {
	b := OutboxBackoff()
	for i := 0; i < 50; i++ {
		within(t, b.NextDelay(0), time.Second, 0.1)
		within(t, b.NextDelay(2), 4*time.Second, 0.1)
		within(t, b.NextDelay(9), 5*time.Minute, 0.1)
	}
}

func TestExponentialBackoff_JitterVaries(t *testing.T) {
	b := ConflictBackoff()
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[b.NextDelay(1)] = true
	}
	assert.Greater(t, len(seen), 1, "jittered delays should not all be equal")
}

func TestFixedBackoff(t *testing.T) {
	b := &FixedBackoff{Delay: time.Minute}
	assert.Equal(t, time.Minute, b.NextDelay(0))
	assert.Equal(t, time.Minute, b.NextDelay(7))
}
