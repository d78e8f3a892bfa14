package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestRetry_SucceedsAfterConflicts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Backoff: &FixedBackoff{Delay: time.Millisecond}}

	calls := 0
	err := Retry(context.Background(), policy, isConflict, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, Backoff: &FixedBackoff{Delay: time.Millisecond}}

	calls := 0
	err := Retry(context.Background(), policy, isConflict, func(ctx context.Context) error {
		calls++
		return errConflict
	})

	if !errors.Is(err, errConflict) {
		t.Fatalf("expected last conflict error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("insufficient balance")

	calls := 0
	err := Retry(context.Background(), DefaultConflictRetryPolicy(), isConflict, func(ctx context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 10, Backoff: &FixedBackoff{Delay: time.Hour}}

	calls := 0
	err := Retry(ctx, policy, isConflict, func(ctx context.Context) error {
		calls++
		cancel()
		return errConflict
	})

	if !errors.Is(err, errConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}
