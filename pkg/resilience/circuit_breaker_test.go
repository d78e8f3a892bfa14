package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failure")

func testBreaker(maxFailures uint32) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         maxFailures,
		Timeout:             10 * time.Second,
		MaxRequestsHalfOpen: 1,
	})
	cb.now = func() time.Time { return now }
	cb.lastStateChangeTime = now
	return cb, &now
}

func fail(context.Context) error { return errUpstream }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	assert.Equal(t, uint32(5), config.MaxFailures)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, uint32(1), config.MaxRequestsHalfOpen)
}

func TestCircuitBreaker_TransitionToOpen(t *testing.T) {
	ctx := context.Background()
	cb, _ := testBreaker(3)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not call through")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	cb, now := testBreaker(1)

	require.Error(t, cb.Call(ctx, fail))
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	ctx := context.Background()
	cb, now := testBreaker(1)

	require.Error(t, cb.Call(ctx, fail))
	*now = now.Add(11 * time.Second)
	require.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_FailureCounterReset(t *testing.T) {
	ctx := context.Background()
	cb, _ := testBreaker(3)

	require.Error(t, cb.Call(ctx, fail))
	require.Error(t, cb.Call(ctx, fail))
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, uint32(0), cb.Failures())

	require.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     time.Minute,
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})

	err := cb.Call(context.Background(), func(context.Context) error { return notFound })
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb, _ := testBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentCalls(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Call(ctx, succeed)
		}()
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := testBreaker(1)
	require.Error(t, cb.Call(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Failures())
}
