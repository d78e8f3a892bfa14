package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// SettlementRepository defines the interface for settlement persistence
type SettlementRepository interface {
	// Create creates a new settlement
	Create(ctx context.Context, tx DBTX, settlement *domain.PaymentSettlement) error

	// GetByID retrieves a settlement by ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentSettlement, error)

	// GetByIDForUpdate retrieves a settlement and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.PaymentSettlement, error)

	// Update persists status, payout and notes
	Update(ctx context.Context, tx DBTX, settlement *domain.PaymentSettlement) error

	// ListOverlapping lists PENDING or COMPLETED settlements of a merchant
	// whose period intersects [start, end)
	ListOverlapping(ctx context.Context, db DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.PaymentSettlement, error)

	// ListByMerchant lists a merchant's settlements, newest period first
	ListByMerchant(ctx context.Context, db DBTX, merchantID uuid.UUID, limit int) ([]*domain.PaymentSettlement, error)

	// LockMerchant serializes settlement runs for a merchant until the transaction ends
	LockMerchant(ctx context.Context, tx DBTX, merchantID uuid.UUID) error
}
