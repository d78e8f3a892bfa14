package converters

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNullableText(t *testing.T) {
	t.Run("nil pointer returns invalid", func(t *testing.T) {
		result := ToNullableText(nil)
		assert.False(t, result.Valid)
	})

	t.Run("valid string pointer returns valid Text", func(t *testing.T) {
		str := "test"
		result := ToNullableText(&str)
		assert.True(t, result.Valid)
		assert.Equal(t, "test", result.String)
	})

	t.Run("empty string pointer returns valid Text", func(t *testing.T) {
		str := ""
		result := ToNullableText(&str)
		assert.True(t, result.Valid)
	})

	t.Run("empty string value returns invalid", func(t *testing.T) {
		assert.False(t, ToNullableTextFromString("").Valid)
		assert.True(t, ToNullableTextFromString("x").Valid)
	})
}

func TestFromNullableText(t *testing.T) {
	assert.Nil(t, FromNullableText(pgtype.Text{}))
	got := FromNullableText(pgtype.Text{String: "ref-1", Valid: true})
	require.NotNil(t, got)
	assert.Equal(t, "ref-1", *got)
}

func TestNullableUUID_RoundTrip(t *testing.T) {
	assert.False(t, ToNullableUUIDFromUUID(nil).Valid)
	assert.Nil(t, FromNullableUUID(pgtype.UUID{}))

	id := uuid.New()
	got := FromNullableUUID(ToNullableUUIDFromUUID(&id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
}

func TestNullableInt32(t *testing.T) {
	assert.False(t, ToNullableInt32(nil).Valid)
	assert.Nil(t, FromNullableInt32(pgtype.Int4{}))

	v := 42
	got := FromNullableInt32(ToNullableInt32(&v))
	require.NotNil(t, got)
	assert.Equal(t, 42, *got)
}

func TestNumeric(t *testing.T) {
	tests := []string{"0", "0.01", "19.99", "-3.50", "123456789012.34"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			d := decimal.RequireFromString(in)
			got, err := FromNumeric(ToNumeric(d))
			require.NoError(t, err)
			assert.True(t, d.Equal(got), "got %s, want %s", got, d)
		})
	}

	t.Run("scanned numeric", func(t *testing.T) {
		n := pgtype.Numeric{Int: big.NewInt(1999), Exp: -2, Valid: true}
		got, err := FromNumeric(n)
		require.NoError(t, err)
		assert.Equal(t, "19.99", got.StringFixed(2))
	})

	t.Run("null and nan are rejected", func(t *testing.T) {
		_, err := FromNumeric(pgtype.Numeric{})
		assert.Error(t, err)
		_, err = FromNumeric(pgtype.Numeric{NaN: true, Valid: true})
		assert.Error(t, err)
	})

	t.Run("nullable", func(t *testing.T) {
		got, err := FromNullableNumeric(ToNullableNumeric(nil))
		require.NoError(t, err)
		assert.Nil(t, got)

		d := decimal.RequireFromString("7.50")
		got, err = FromNullableNumeric(ToNullableNumeric(&d))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, d.Equal(*got))
	})
}

func TestNullableTimestamptz(t *testing.T) {
	assert.False(t, ToNullableTimestamptz(nil).Valid)
	assert.Nil(t, FromNullableTimestamptz(pgtype.Timestamptz{}))

	now := time.Now()
	got := FromNullableTimestamptz(ToNullableTimestamptz(&now))
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))
	assert.Equal(t, time.UTC, got.Location())
}

func TestStringOrEmpty(t *testing.T) {
	assert.Equal(t, "", StringOrEmpty(nil))
	s := "value"
	assert.Equal(t, "value", StringOrEmpty(&s))
}
