package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType represents the kind of payment account
type AccountType string

const (
	AccountTypeWallet      AccountType = "WALLET"
	AccountTypeBankAccount AccountType = "BANK_ACCOUNT"
	AccountTypeCreditCard  AccountType = "CREDIT_CARD"
	AccountTypeMobileMoney AccountType = "MOBILE_MONEY"
)

// AccountStatus represents whether an account accepts mutations
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// PaymentAccount holds a user's balance in a single currency.
// Balance is only changed by Credit and Debit, called by the ledger.
type PaymentAccount struct {
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	Balance           decimal.Decimal `json:"balance"`
	AccountIdentifier string          `json:"account_identifier"`
	Currency          string          `json:"currency"`
	AccountType       AccountType     `json:"account_type"`
	Status            AccountStatus   `json:"status"`
	Version           int64           `json:"version"`
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	IsDefault         bool            `json:"is_default"`
}

// IsActive returns true if the account accepts credits and debits
func (a *PaymentAccount) IsActive() bool {
	return a.Status == AccountStatusActive && a.DeletedAt == nil
}

func (a *PaymentAccount) checkMutation(amount decimal.Decimal, currency string) error {
	if !a.IsActive() {
		return NewDomainError(ErrorCodeAccountInactive, "payment account is not active").
			WithDetail("account_id", a.ID.String()).
			WithDetail("status", string(a.Status))
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	return CheckCurrency(a.Currency, currency)
}

// Credit adds amount to the balance
func (a *PaymentAccount) Credit(amount decimal.Decimal, currency string, now time.Time) error {
	if err := a.checkMutation(amount, currency); err != nil {
		return err
	}
	a.Balance = RoundMoney(a.Balance.Add(amount))
	a.UpdatedAt = now
	return nil
}

// Debit removes amount from the balance, failing if the balance would go negative
func (a *PaymentAccount) Debit(amount decimal.Decimal, currency string, now time.Time) error {
	if err := a.checkMutation(amount, currency); err != nil {
		return err
	}
	if a.Balance.LessThan(amount) {
		return NewDomainError(ErrorCodeInsufficientBalance, "insufficient balance").
			WithDetail("account_id", a.ID.String()).
			WithDetail("balance", a.Balance.String()).
			WithDetail("requested", amount.String())
	}
	a.Balance = RoundMoney(a.Balance.Sub(amount))
	a.UpdatedAt = now
	return nil
}

// Validate checks a new account before it is persisted
func (a *PaymentAccount) Validate() error {
	if a.UserID == uuid.Nil {
		return Errorf(ErrorCodeValidationMissingField, "account user_id is required")
	}
	switch a.AccountType {
	case AccountTypeWallet, AccountTypeBankAccount, AccountTypeCreditCard, AccountTypeMobileMoney:
	default:
		return Errorf(ErrorCodeValidationFailed, "unknown account type %q", a.AccountType)
	}
	if _, err := NormalizeCurrency(a.Currency); err != nil {
		return err
	}
	return ValidateNonNegative(a.Balance)
}

// LedgerEntry is the immutable record of one balance mutation.
// Amount is signed: positive for credits, negative for debits.
type LedgerEntry struct {
	CreatedAt      time.Time       `json:"created_at"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	Reason         string          `json:"reason"`
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
}

// NewLedgerEntry records a mutation already applied to acct
func NewLedgerEntry(acct *PaymentAccount, delta decimal.Decimal, key, reason string, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		Amount:         delta,
		BalanceAfter:   acct.Balance,
		Currency:       acct.Currency,
		IdempotencyKey: key,
		Reason:         reason,
		CreatedAt:      now,
	}
}
