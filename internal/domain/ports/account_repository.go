package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// AccountRepository defines the interface for payment account persistence
type AccountRepository interface {
	// Create creates a new account
	Create(ctx context.Context, tx DBTX, account *domain.PaymentAccount) error

	// GetByID retrieves a non-deleted account by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentAccount, error)

	// GetByIDForUpdate retrieves an account and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.PaymentAccount, error)

	// UpdateBalance persists balance and status guarded by version.
	// On success account.Version is incremented.
	UpdateBalance(ctx context.Context, tx DBTX, account *domain.PaymentAccount) error

	// ListByUser lists a user's accounts, default first
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]*domain.PaymentAccount, error)
}

// LedgerEntryRepository defines the interface for the append-only ledger
type LedgerEntryRepository interface {
	// Create appends an entry; a reused (account, key) pair fails with ALREADY_EXISTS
	Create(ctx context.Context, tx DBTX, entry *domain.LedgerEntry) error

	// GetByIdempotencyKey retrieves the entry written for key on an account
	GetByIdempotencyKey(ctx context.Context, db DBTX, accountID uuid.UUID, key string) (*domain.LedgerEntry, error)

	// ListByAccount lists the most recent entries of an account
	ListByAccount(ctx context.Context, db DBTX, accountID uuid.UUID, limit int) ([]*domain.LedgerEntry, error)
}
