package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy maps a 0-indexed attempt number to the wait before it
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows BaseDelay by Multiplier per attempt, caps it at
// MaxDelay and spreads it by ±Jitter (a fraction of the delay)
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
}

// ConflictBackoff spaces out re-runs of a transaction that lost a row-lock or
// serialization race: ~10ms, ~20ms, ~40ms, then capped at 200ms. Wide jitter
// keeps two contenders from colliding again on the same beat.
func ConflictBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.5,
	}
}

// OutboxBackoff schedules re-publication of an outbox entry after a broker
// failure: ~1s, ~2s, ~4s, reaching the 5m cap by the ninth attempt
func OutboxBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay returns BaseDelay * Multiplier^attempt, capped and jittered
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := math.Min(float64(eb.BaseDelay)*math.Pow(eb.Multiplier, float64(attempt)), float64(eb.MaxDelay))
	delay += (rand.Float64()*2 - 1) * delay * eb.Jitter

	if delay < 0 {
		return eb.BaseDelay
	}
	return time.Duration(delay)
}

// FixedBackoff waits the same Delay before every attempt
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay returns Delay
func (fb *FixedBackoff) NextDelay(int) time.Duration {
	return fb.Delay
}
