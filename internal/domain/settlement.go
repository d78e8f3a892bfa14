package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus represents the lifecycle state of a payout batch
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
	SettlementStatusCancelled SettlementStatus = "CANCELLED"
)

// PaymentSettlement is a merchant's payout batch over [PeriodStart, PeriodEnd)
type PaymentSettlement struct {
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	PayoutDate       *time.Time       `json:"payout_date,omitempty"`
	TotalRevenue     decimal.Decimal  `json:"total_revenue"`
	TotalFees        decimal.Decimal  `json:"total_fees"`
	NetPayoutAmount  decimal.Decimal  `json:"net_payout_amount"`
	Currency         string           `json:"currency"`
	BankReference    string           `json:"bank_reference,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Status           SettlementStatus `json:"status"`
	TransactionCount int              `json:"transaction_count"`
	ID               uuid.UUID        `json:"id"`
	MerchantID       uuid.UUID        `json:"merchant_id"`
}

// ValidatePeriod checks that start < end
func ValidatePeriod(start, end time.Time) error {
	if !start.Before(end) {
		return Errorf(ErrorCodeValidationFailed, "period start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether [start, end) intersects the settlement period
func (s *PaymentSettlement) Overlaps(start, end time.Time) bool {
	return s.PeriodStart.Before(end) && start.Before(s.PeriodEnd)
}

// BlocksPeriod is true for settlements that reserve their period
func (s *PaymentSettlement) BlocksPeriod() bool {
	return s.Status == SettlementStatusPending || s.Status == SettlementStatusCompleted
}

func (s *PaymentSettlement) transition(next SettlementStatus, now time.Time) error {
	if s.Status != SettlementStatusPending {
		return invalidTransition("settlement", s.Status, next).WithDetail("settlement_id", s.ID.String())
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// Complete marks the payout as sent
func (s *PaymentSettlement) Complete(bankReference string, now time.Time) error {
	if bankReference == "" {
		return Errorf(ErrorCodeValidationMissingField, "bank reference is required")
	}
	if err := s.transition(SettlementStatusCompleted, now); err != nil {
		return err
	}
	payoutDate := now
	s.PayoutDate = &payoutDate
	s.BankReference = bankReference
	return nil
}

// Fail marks the payout as failed, releasing the period for a new run
func (s *PaymentSettlement) Fail(reason string, now time.Time) error {
	if err := s.transition(SettlementStatusFailed, now); err != nil {
		return err
	}
	s.Notes = reason
	return nil
}

// Cancel withdraws a pending settlement
func (s *PaymentSettlement) Cancel(reason string, now time.Time) error {
	if err := s.transition(SettlementStatusCancelled, now); err != nil {
		return err
	}
	s.Notes = reason
	return nil
}

// SettlementTotals accumulates exact sums over included transactions
type SettlementTotals struct {
	Revenue  decimal.Decimal
	Fees     decimal.Decimal
	Currency string
	Count    int
}

// Add includes one transaction. All included transactions must share a currency.
func (t *SettlementTotals) Add(txn *Transaction) error {
	if t.Count == 0 && t.Currency == "" {
		t.Currency = txn.Currency
	}
	if err := CheckCurrency(t.Currency, txn.Currency); err != nil {
		return err
	}
	t.Revenue = t.Revenue.Add(txn.Amount)
	t.Fees = t.Fees.Add(txn.FeeAmount)
	t.Count++
	return nil
}

// NewSettlement builds a PENDING settlement from accumulated totals
func NewSettlement(merchantID uuid.UUID, start, end time.Time, totals SettlementTotals, now time.Time) *PaymentSettlement {
	currency := totals.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &PaymentSettlement{
		ID:               uuid.New(),
		MerchantID:       merchantID,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalRevenue:     totals.Revenue,
		TotalFees:        totals.Fees,
		NetPayoutAmount:  totals.Revenue.Sub(totals.Fees),
		TransactionCount: totals.Count,
		Currency:         currency,
		Status:           SettlementStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
