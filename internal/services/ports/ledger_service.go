package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// OpenAccountRequest contains parameters for opening a payment account
type OpenAccountRequest struct {
	AccountType       domain.AccountType
	AccountIdentifier string
	Currency          string
	UserID            uuid.UUID
}

// TransferResult holds both legs of a transfer
type TransferResult struct {
	Debit  *domain.LedgerEntry
	Credit *domain.LedgerEntry
}

// LedgerService owns account balances. Every mutation is keyed by an
// idempotency key; replaying a key returns the recorded entry.
type LedgerService interface {
	// OpenAccount creates an ACTIVE account with zero balance
	OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.PaymentAccount, error)

	// Credit adds amount to an account
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*domain.LedgerEntry, error)

	// Debit removes amount from an account; fails with INSUFFICIENT_BALANCE
	Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*domain.LedgerEntry, error)

	// Transfer debits from and credits to atomically
	Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*TransferResult, error)

	// GetAccount returns an account, read through the cache
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.PaymentAccount, error)

	// ListAccounts lists a user's accounts, default first
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.PaymentAccount, error)

	// ListEntries lists the most recent ledger entries of an account
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.LedgerEntry, error)
}
