package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(balance string) *PaymentAccount {
	return &PaymentAccount{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AccountType: AccountTypeWallet,
		Balance:     decimal.RequireFromString(balance),
		Currency:    "USD",
		Status:      AccountStatusActive,
	}
}

// TestPaymentAccount_Debit tests the non-negative balance invariant
func TestPaymentAccount_Debit(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name        string
		balance     string
		amount      string
		currency    string
		wantCode    ErrorCode
		wantBalance string
	}{
		{"debit within balance", "10.00", "4.50", "USD", "", "5.50"},
		{"debit entire balance", "10.00", "10.00", "USD", "", "0.00"},
		{"debit beyond balance", "5.00", "10.00", "USD", ErrorCodeInsufficientBalance, "5.00"},
		{"currency mismatch", "10.00", "1.00", "EUR", ErrorCodeCurrencyMismatch, "10.00"},
		{"zero amount", "10.00", "0", "USD", ErrorCodeValidationAmountInvalid, "10.00"},
		{"sub-cent amount", "10.00", "0.001", "USD", ErrorCodeValidationAmountInvalid, "10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := testAccount(tt.balance)
			err := acct.Debit(decimal.RequireFromString(tt.amount), tt.currency, now)
			if tt.wantCode != "" {
				assert.True(t, IsDomainError(err, tt.wantCode), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, acct.Balance.Equal(decimal.RequireFromString(tt.wantBalance)),
				"balance = %s, want %s", acct.Balance, tt.wantBalance)
		})
	}
}

// TestPaymentAccount_Credit tests credits and inactive accounts
func TestPaymentAccount_Credit(t *testing.T) {
	now := time.Now().UTC()

	acct := testAccount("0.10")
	require.NoError(t, acct.Credit(decimal.RequireFromString("0.20"), "usd", now))
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("0.30")), "decimal arithmetic must be exact")

	acct.Status = AccountStatusSuspended
	err := acct.Credit(decimal.RequireFromString("1.00"), "USD", now)
	assert.True(t, IsDomainError(err, ErrorCodeAccountInactive))
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("0.30")))
}

// TestNewLedgerEntry tests the entry snapshot of the post-mutation balance
func TestNewLedgerEntry(t *testing.T) {
	now := time.Now().UTC()
	acct := testAccount("5.00")
	require.NoError(t, acct.Debit(decimal.RequireFromString("2.00"), "USD", now))

	entry := NewLedgerEntry(acct, decimal.RequireFromString("-2.00"), "key-1", "purchase", now)
	assert.Equal(t, acct.ID, entry.AccountID)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, entry.Amount.IsNegative())
	assert.Equal(t, "key-1", entry.IdempotencyKey)
}

// TestNormalizeCurrency tests currency parsing
func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"usd", "USD", false},
		{" eur ", "EUR", false},
		{"", DefaultCurrency, false},
		{"US", "", true},
		{"U$D", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCurrency(tt.in)
			if tt.wantErr {
				assert.True(t, IsDomainError(err, ErrorCodeValidationCurrencyInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
