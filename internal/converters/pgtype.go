package converters

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ToNullableText converts a string pointer to pgtype.Text
// Returns invalid Text if pointer is nil
func ToNullableText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// ToNullableTextFromString treats the empty string as NULL
func ToNullableTextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// FromNullableText converts pgtype.Text to a string pointer
func FromNullableText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// ToNullableUUIDFromUUID converts a UUID pointer to pgtype.UUID
// Returns invalid UUID if pointer is nil
func ToNullableUUIDFromUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// FromNullableUUID converts pgtype.UUID to a UUID pointer
func FromNullableUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := uuid.UUID(id.Bytes)
	return &u
}

// ToNullableInt32 converts an int pointer to pgtype.Int4
// Returns invalid Int4 if pointer is nil
func ToNullableInt32(i *int) pgtype.Int4 {
	if i == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(*i), Valid: true}
}

// FromNullableInt32 converts pgtype.Int4 to an int pointer
func FromNullableInt32(i pgtype.Int4) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int32)
	return &v
}

// ToNumeric converts a decimal to pgtype.Numeric without loss
func ToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// FromNumeric converts pgtype.Numeric to a decimal.
// NULL, NaN and infinities are rejected.
func FromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, fmt.Errorf("numeric is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("numeric is not finite")
	}
	if n.Int == nil {
		return decimal.NewFromBigInt(new(big.Int), n.Exp), nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// ToNullableNumeric converts a decimal pointer to pgtype.Numeric
func ToNullableNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{Valid: false}
	}
	return ToNumeric(*d)
}

// FromNullableNumeric converts pgtype.Numeric to a decimal pointer
func FromNullableNumeric(n pgtype.Numeric) (*decimal.Decimal, error) {
	if !n.Valid {
		return nil, nil
	}
	d, err := FromNumeric(n)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ToNullableTimestamptz converts a time pointer to pgtype.Timestamptz
func ToNullableTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// FromNullableTimestamptz converts pgtype.Timestamptz to a UTC time pointer
func FromNullableTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// StringOrEmpty returns empty string if pointer is nil, otherwise returns the value
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
