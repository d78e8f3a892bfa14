package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

// TestPaymentSettlement_Overlaps tests half-open period intersection
func TestPaymentSettlement_Overlaps(t *testing.T) {
	s := &PaymentSettlement{PeriodStart: day(1), PeriodEnd: day(15)}

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected bool
	}{
		{"contained", day(3), day(5), true},
		{"straddles end", day(10), day(20), true},
		{"straddles start", day(1).Add(-time.Hour), day(2), true},
		{"adjacent after", day(15), day(20), false},
		{"adjacent before", day(1).AddDate(0, 0, -5), day(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.Overlaps(tt.start, tt.end))
		})
	}
}

// TestSettlementTotals_Exact tests exact decimal sums
func TestSettlementTotals_Exact(t *testing.T) {
	var totals SettlementTotals
	for i := 0; i < 10; i++ {
		require.NoError(t, totals.Add(&Transaction{
			Amount:    decimal.RequireFromString("0.10"),
			FeeAmount: decimal.RequireFromString("0.01"),
			Currency:  "USD",
		}))
	}

	s := NewSettlement(uuid.New(), day(1), day(15), totals, day(15))
	assert.True(t, s.TotalRevenue.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, s.TotalFees.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, s.NetPayoutAmount.Equal(s.TotalRevenue.Sub(s.TotalFees)))
	assert.Equal(t, 10, s.TransactionCount)
	assert.Equal(t, SettlementStatusPending, s.Status)

	err := totals.Add(&Transaction{Amount: decimal.NewFromInt(1), Currency: "EUR"})
	assert.True(t, IsDomainError(err, ErrorCodeCurrencyMismatch))
}

// TestPaymentSettlement_Transitions tests terminal immutability
func TestPaymentSettlement_Transitions(t *testing.T) {
	now := day(16)

	s := &PaymentSettlement{Status: SettlementStatusPending}
	assert.Error(t, s.Complete("", now), "bank reference is required")
	require.NoError(t, s.Complete("BANK-1", now))
	assert.Equal(t, SettlementStatusCompleted, s.Status)
	require.NotNil(t, s.PayoutDate)
	assert.True(t, s.BlocksPeriod())

	assert.True(t, IsDomainError(s.Fail("late", now), ErrorCodeInvalidStateTransition))
	assert.True(t, IsDomainError(s.Cancel("late", now), ErrorCodeInvalidStateTransition))

	failed := &PaymentSettlement{Status: SettlementStatusPending}
	require.NoError(t, failed.Fail("bank rejected", now))
	assert.False(t, failed.BlocksPeriod())
	assert.Equal(t, "bank rejected", failed.Notes)
}

// TestValidatePeriod tests period ordering
func TestValidatePeriod(t *testing.T) {
	assert.NoError(t, ValidatePeriod(day(1), day(2)))
	assert.Error(t, ValidatePeriod(day(2), day(2)))
	assert.Error(t, ValidatePeriod(day(3), day(2)))
}
