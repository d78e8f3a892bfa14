package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestDomainErrors_Messages tests that sentinel errors carry their code and message
func TestDomainErrors_Messages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"voucher_not_found", ErrVoucherNotFound, "voucher not found"},
		{"voucher_expired", ErrVoucherExpired, "voucher has expired"},
		{"already_redeemed", ErrVoucherAlreadyRedeemed, "voucher already redeemed"},
		{"insufficient_balance", ErrInsufficientBalance, "insufficient balance"},
		{"currency_mismatch", ErrCurrencyMismatch, "currency mismatch"},
		{"overlapping_period", ErrOverlappingPeriod, "overlaps an existing settlement"},
		{"concurrency_conflict", ErrConcurrencyConflict, "concurrent modification"},
		{"upstream_timeout", ErrUpstreamTimeout, "upstream timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(strings.ToLower(tt.err.Error()), tt.contains) {
				t.Errorf("error message %q does not contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

// TestDomainError_IsMatchesByCode tests errors.Is through wrapping layers
func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewDomainError(ErrorCodeVoucherExpired, "voucher V1 expired").WithDetail("code", "V1")
	wrapped := fmt.Errorf("redeem: %w", err)

	if !errors.Is(wrapped, ErrVoucherExpired) {
		t.Errorf("expected wrapped error to match ErrVoucherExpired")
	}
	if errors.Is(wrapped, ErrVoucherCancelled) {
		t.Errorf("expected wrapped error not to match ErrVoucherCancelled")
	}
	if !IsDomainError(wrapped, ErrorCodeVoucherExpired) {
		t.Errorf("expected IsDomainError to find code through wrapping")
	}
	if GetErrorCode(wrapped) != ErrorCodeVoucherExpired {
		t.Errorf("expected code %s, got %s", ErrorCodeVoucherExpired, GetErrorCode(wrapped))
	}
}

// TestDomainError_WrapUnwrap tests that the underlying cause is preserved
func TestDomainError_WrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrorCodeDatabaseError, "lookup voucher", cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause to be reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error message %q does not include cause", err.Error())
	}
}

// TestErrorCategories tests the category predicates
func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		validation bool
		retryable  bool
	}{
		{"account not found", ErrAccountNotFound, true, false, false},
		{"settlement not found", ErrSettlementNotFound, true, false, false},
		{"amount invalid", ErrValidationAmountInvalid, false, true, false},
		{"conflict", ErrConcurrencyConflict, false, false, true},
		{"plain error", errors.New("boom"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.notFound)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.validation)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// TestOutcomeLabel tests metric label derivation
func TestOutcomeLabel(t *testing.T) {
	if got := OutcomeLabel(nil); got != "success" {
		t.Errorf("OutcomeLabel(nil) = %q", got)
	}
	if got := OutcomeLabel(fmt.Errorf("redeem: %w", ErrVoucherExpired)); got != "voucher_expired" {
		t.Errorf("OutcomeLabel(expired) = %q", got)
	}
	if got := OutcomeLabel(errors.New("boom")); got != "error" {
		t.Errorf("OutcomeLabel(plain) = %q", got)
	}
}
