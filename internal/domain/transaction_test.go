package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransaction_TransitionTo tests the transaction state machine
func TestTransaction_TransitionTo(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{"pending to completed", TransactionStatusPending, TransactionStatusCompleted, true},
		{"pending to failed", TransactionStatusPending, TransactionStatusFailed, true},
		{"pending to cancelled", TransactionStatusPending, TransactionStatusCancelled, true},
		{"pending to refunded", TransactionStatusPending, TransactionStatusRefunded, false},
		{"completed to refunded", TransactionStatusCompleted, TransactionStatusRefunded, true},
		{"completed to cancelled", TransactionStatusCompleted, TransactionStatusCancelled, false},
		{"completed to failed", TransactionStatusCompleted, TransactionStatusFailed, false},
		{"failed to completed", TransactionStatusFailed, TransactionStatusCompleted, false},
		{"refunded to completed", TransactionStatusRefunded, TransactionStatusCompleted, false},
		{"cancelled to pending", TransactionStatusCancelled, TransactionStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := &Transaction{ID: uuid.New(), Status: tt.from}
			err := txn.TransitionTo(tt.to, now)
			if tt.allowed {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, txn.Status)
			} else {
				assert.True(t, IsDomainError(err, ErrorCodeInvalidStateTransition))
				assert.Equal(t, tt.from, txn.Status)
			}
		})
	}
}

// TestTransaction_IsTerminal tests terminal detection
func TestTransaction_IsTerminal(t *testing.T) {
	assert.False(t, (&Transaction{Status: TransactionStatusPending}).IsTerminal())
	assert.False(t, (&Transaction{Status: TransactionStatusCompleted}).IsTerminal())
	assert.True(t, (&Transaction{Status: TransactionStatusFailed}).IsTerminal())
	assert.True(t, (&Transaction{Status: TransactionStatusRefunded}).IsTerminal())
	assert.True(t, (&Transaction{Status: TransactionStatusCancelled}).IsTerminal())
}

// TestNewTransactionItem tests derived totals
func TestNewTransactionItem(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		unitPrice string
		discount  string
		wantTotal string
		wantErr   bool
	}{
		{"single item", 1, "20.00", "0", "20.00", false},
		{"quantity with discount", 3, "9.99", "2.97", "27.00", false},
		{"zero quantity", 0, "1.00", "0", "", true},
		{"discount exceeds price", 1, "1.00", "1.01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewTransactionItem(ItemTypeProduct, uuid.New(), tt.quantity,
				decimal.RequireFromString(tt.unitPrice), decimal.RequireFromString(tt.discount))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString(tt.wantTotal)),
				"total = %s, want %s", item.TotalPrice, tt.wantTotal)
		})
	}
}

// TestTransaction_Validate tests amount and fee bounds
func TestTransaction_Validate(t *testing.T) {
	empty := ""
	base := func() *Transaction {
		return &Transaction{
			Type:      TransactionTypePurchase,
			UserID:    uuid.New(),
			Amount:    decimal.RequireFromString("10.00"),
			FeeAmount: decimal.RequireFromString("0.30"),
			Currency:  "USD",
		}
	}

	assert.NoError(t, base().Validate())

	txn := base()
	txn.FeeAmount = decimal.RequireFromString("10.01")
	assert.Error(t, txn.Validate())

	txn = base()
	txn.ExternalRef = &empty
	assert.Error(t, txn.Validate())

	txn = base()
	txn.Type = "BARTER"
	assert.Error(t, txn.Validate())
}

// TestTransactionStatusAction tests event action naming
func TestTransactionStatusAction(t *testing.T) {
	assert.Equal(t, "transaction-completed", TransactionStatusAction(TransactionStatusCompleted))
	assert.Equal(t, "transaction-refunded", TransactionStatusAction(TransactionStatusRefunded))
}
