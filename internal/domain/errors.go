package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Voucher Errors (VOUCHER_*)
	ErrorCodeVoucherNotFound          ErrorCode = "VOUCHER_NOT_FOUND"
	ErrorCodeVoucherExpired           ErrorCode = "VOUCHER_EXPIRED"
	ErrorCodeVoucherAlreadyRedeemed   ErrorCode = "VOUCHER_ALREADY_REDEEMED"
	ErrorCodeVoucherCancelled         ErrorCode = "VOUCHER_CANCELLED"
	ErrorCodeVoucherInsufficientValue ErrorCode = "VOUCHER_INSUFFICIENT_VALUE"
	ErrorCodeVoucherNotOwned          ErrorCode = "VOUCHER_NOT_OWNED"

	// Template Errors (TEMPLATE_*)
	ErrorCodeTemplateNotFound    ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrorCodeTemplateUnavailable ErrorCode = "TEMPLATE_INACTIVE_OR_EXPIRED"
	ErrorCodeUsageLimitExceeded  ErrorCode = "USAGE_LIMIT_EXCEEDED"

	// Redemption Errors (REDEMPTION_*)
	ErrorCodeRedemptionNotFound ErrorCode = "REDEMPTION_NOT_FOUND"
	ErrorCodeRedemptionRejected ErrorCode = "REDEMPTION_REJECTED"

	// Account Errors (ACCOUNT_*)
	ErrorCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrorCodeAccountInactive     ErrorCode = "ACCOUNT_INACTIVE"
	ErrorCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrorCodeCurrencyMismatch    ErrorCode = "CURRENCY_MISMATCH"
	ErrorCodeLedgerEntryNotFound ErrorCode = "LEDGER_ENTRY_NOT_FOUND"

	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound ErrorCode = "TXN_NOT_FOUND"

	// Settlement Errors (SETTLEMENT_*)
	ErrorCodeSettlementNotFound ErrorCode = "SETTLEMENT_NOT_FOUND"
	ErrorCodeOverlappingPeriod  ErrorCode = "SETTLEMENT_OVERLAPPING_PERIOD"

	// State Errors
	ErrorCodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrorCodeAlreadyExists          ErrorCode = "ALREADY_EXISTS"

	// Concurrency Errors
	ErrorCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrorCodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed          ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid   ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationCurrencyInvalid ErrorCode = "VALIDATION_CURRENCY_INVALID"
	ErrorCodeValidationMissingField    ErrorCode = "VALIDATION_MISSING_FIELD"

	// Idempotency Errors (IDEMPOTENCY_*)
	ErrorCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so sentinels work with errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Errorf creates a new domain error with a formatted message
func Errorf(code ErrorCode, format string, args ...interface{}) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeVoucherNotFound,
		ErrorCodeTemplateNotFound,
		ErrorCodeRedemptionNotFound,
		ErrorCodeAccountNotFound,
		ErrorCodeLedgerEntryNotFound,
		ErrorCodeTxnNotFound,
		ErrorCodeSettlementNotFound:
		return true
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeValidationFailed,
		ErrorCodeValidationAmountInvalid,
		ErrorCodeValidationCurrencyInvalid,
		ErrorCodeValidationMissingField:
		return true
	}
	return false
}

// IsRetryable reports whether the operation lost a race and may be re-run safely
func IsRetryable(err error) bool {
	return IsDomainError(err, ErrorCodeConcurrencyConflict)
}

// OutcomeLabel turns an operation result into a low-cardinality metric label
func OutcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if code := GetErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

// Sentinel errors for errors.Is comparisons. Never mutate these; build a fresh
// error with NewDomainError when details are needed.
var (
	ErrVoucherNotFound          = NewDomainError(ErrorCodeVoucherNotFound, "voucher not found")
	ErrVoucherExpired           = NewDomainError(ErrorCodeVoucherExpired, "voucher has expired")
	ErrVoucherAlreadyRedeemed   = NewDomainError(ErrorCodeVoucherAlreadyRedeemed, "voucher already redeemed")
	ErrVoucherCancelled         = NewDomainError(ErrorCodeVoucherCancelled, "voucher is cancelled")
	ErrVoucherInsufficientValue = NewDomainError(ErrorCodeVoucherInsufficientValue, "requested amount exceeds voucher value")
	ErrVoucherNotOwned          = NewDomainError(ErrorCodeVoucherNotOwned, "voucher is not owned by caller")

	ErrTemplateNotFound    = NewDomainError(ErrorCodeTemplateNotFound, "voucher template not found")
	ErrTemplateUnavailable = NewDomainError(ErrorCodeTemplateUnavailable, "voucher template is inactive or outside its validity window")
	ErrUsageLimitExceeded  = NewDomainError(ErrorCodeUsageLimitExceeded, "voucher usage limit exceeded")

	ErrRedemptionNotFound = NewDomainError(ErrorCodeRedemptionNotFound, "redemption not found")
	ErrRedemptionRejected = NewDomainError(ErrorCodeRedemptionRejected, "redemption rejected by screening")

	ErrAccountNotFound     = NewDomainError(ErrorCodeAccountNotFound, "payment account not found")
	ErrAccountInactive     = NewDomainError(ErrorCodeAccountInactive, "payment account is not active")
	ErrInsufficientBalance = NewDomainError(ErrorCodeInsufficientBalance, "insufficient balance")
	ErrCurrencyMismatch    = NewDomainError(ErrorCodeCurrencyMismatch, "currency mismatch")
	ErrLedgerEntryNotFound = NewDomainError(ErrorCodeLedgerEntryNotFound, "ledger entry not found")

	ErrTxnNotFound = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")

	ErrSettlementNotFound = NewDomainError(ErrorCodeSettlementNotFound, "settlement not found")
	ErrOverlappingPeriod  = NewDomainError(ErrorCodeOverlappingPeriod, "settlement period overlaps an existing settlement")

	ErrInvalidStateTransition = NewDomainError(ErrorCodeInvalidStateTransition, "invalid state transition")
	ErrAlreadyExists          = NewDomainError(ErrorCodeAlreadyExists, "already exists")

	ErrConcurrencyConflict = NewDomainError(ErrorCodeConcurrencyConflict, "concurrent modification detected")
	ErrUpstreamTimeout     = NewDomainError(ErrorCodeUpstreamTimeout, "upstream timed out")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrIdempotencyConflict = NewDomainError(ErrorCodeIdempotencyConflict, "idempotency key reused with different parameters")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

// invalidTransition builds an InvalidStateTransition error for an entity
func invalidTransition(entity string, from, to interface{}) *DomainError {
	return Errorf(ErrorCodeInvalidStateTransition, "%s cannot transition from %v to %v", entity, from, to).
		WithDetail("from", fmt.Sprint(from)).
		WithDetail("to", fmt.Sprint(to))
}
