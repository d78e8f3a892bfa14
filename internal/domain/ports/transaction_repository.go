package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// TransactionRepository defines the interface for transaction persistence
type TransactionRepository interface {
	// Create creates a transaction together with its items.
	// A duplicate external reference fails with ALREADY_EXISTS.
	Create(ctx context.Context, tx DBTX, transaction *domain.Transaction) error

	// GetByID retrieves a transaction and its items by ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error)

	// GetByIDForUpdate retrieves a transaction and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Transaction, error)

	// GetByExternalRef retrieves a transaction by its external gateway reference
	GetByExternalRef(ctx context.Context, db DBTX, externalRef string) (*domain.Transaction, error)

	// UpdateStatus persists a status change
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status domain.TransactionStatus, updatedAt time.Time) error

	// ListStalePending lists PENDING transactions created before olderThan, oldest first
	ListStalePending(ctx context.Context, db DBTX, olderThan time.Time, limit int) ([]*domain.Transaction, error)

	// ListCompletedForSettlement lists a merchant's COMPLETED transactions with
	// transactionDate in [start, end)
	ListCompletedForSettlement(ctx context.Context, db DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.Transaction, error)

	// ListMerchantsWithCompleted lists merchants having COMPLETED transactions in [start, end)
	ListMerchantsWithCompleted(ctx context.Context, db DBTX, start, end time.Time) ([]uuid.UUID, error)
}
