// Package fixtures provides test data builders and helpers.
package fixtures

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// UUIDPtr returns a pointer to a fresh random UUID
func UUIDPtr() *uuid.UUID {
	id := uuid.New()
	return &id
}

// Dec parses s as a decimal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DecPtr returns a pointer to the decimal parsed from s
func DecPtr(s string) *decimal.Decimal {
	d := Dec(s)
	return &d
}
