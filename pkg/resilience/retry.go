package resilience

import (
	"context"
	"time"
)

// RetryPolicy bounds how often an operation is re-run
type RetryPolicy struct {
	Backoff     BackoffStrategy
	MaxAttempts int
}

// DefaultConflictRetryPolicy re-runs a conflicting transaction up to 5 times
func DefaultConflictRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     ConflictBackoff(),
	}
}

// Retry runs fn until it succeeds, returns an error retryable rejects, or
// MaxAttempts is reached. The last error is returned unchanged so callers
// still see the typed failure.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts-1 || policy.Backoff == nil {
			continue
		}

		timer := time.NewTimer(policy.Backoff.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
