package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedemptionStatus tracks the saga as a whole
type RedemptionStatus string

const (
	RedemptionStatusPending   RedemptionStatus = "PENDING"
	RedemptionStatusCompleted RedemptionStatus = "COMPLETED"
)

// RedemptionStep is the last saga step that committed
type RedemptionStep string

const (
	RedemptionStepVoucherApplied RedemptionStep = "VOUCHER_APPLIED"
	RedemptionStepLedgerApplied  RedemptionStep = "LEDGER_APPLIED"
	RedemptionStepRecorded       RedemptionStep = "RECORDED"
)

// Redemption is the durable log of one redemption saga. It is written in the
// same commit as the voucher mutation, and every later step is keyed by its ID.
type Redemption struct {
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	AccountID      *uuid.UUID       `json:"account_id,omitempty"`
	TransactionID  *uuid.UUID       `json:"transaction_id,omitempty"`
	IdempotencyKey *string          `json:"idempotency_key,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	Fee            decimal.Decimal  `json:"fee"`
	Code           string           `json:"code"`
	Currency       string           `json:"currency"`
	Status         RedemptionStatus `json:"status"`
	Step           RedemptionStep   `json:"step"`
	ID             uuid.UUID        `json:"id"`
	VoucherID      uuid.UUID        `json:"voucher_id"`
	UserID         uuid.UUID        `json:"user_id"`
	MerchantID     uuid.UUID        `json:"merchant_id"`
}

// LedgerKey is the idempotency key of the ledger step
func (r *Redemption) LedgerKey() string {
	return "redemption:" + r.ID.String()
}

// ExternalRef is the dedup reference of the recorded REDEMPTION transaction
func (r *Redemption) ExternalRef() string {
	return "redemption:" + r.ID.String()
}

// NetAmount is the value credited to the account after fees
func (r *Redemption) NetAmount() decimal.Decimal {
	return RoundMoney(r.Amount.Sub(r.Fee))
}

// IsCompleted reports whether every saga step has committed
func (r *Redemption) IsCompleted() bool {
	return r.Status == RedemptionStatusCompleted
}

// NeedsLedgerStep reports whether the ledger credit is still outstanding
func (r *Redemption) NeedsLedgerStep() bool {
	return r.AccountID != nil && r.Step == RedemptionStepVoucherApplied
}

// MarkLedgerApplied advances the saga past the ledger credit
func (r *Redemption) MarkLedgerApplied(now time.Time) {
	if r.Step == RedemptionStepVoucherApplied {
		r.Step = RedemptionStepLedgerApplied
		r.UpdatedAt = now
	}
}

// Complete records the final step
func (r *Redemption) Complete(transactionID uuid.UUID, now time.Time) {
	id := transactionID
	r.TransactionID = &id
	r.Step = RedemptionStepRecorded
	r.Status = RedemptionStatusCompleted
	r.UpdatedAt = now
}
