package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// TemplateRepository defines the interface for voucher template persistence
type TemplateRepository interface {
	// Create creates a new template
	Create(ctx context.Context, tx DBTX, tpl *domain.VoucherTemplate) error

	// GetByID retrieves a non-deleted template by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.VoucherTemplate, error)

	// GetByIDForUpdate retrieves a template and locks it until the transaction ends.
	// Issuance holds this lock while it checks usage limits.
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.VoucherTemplate, error)

	// Update persists activation state and the issued counter
	Update(ctx context.Context, tx DBTX, tpl *domain.VoucherTemplate) error
}

// VoucherRepository defines the interface for issued voucher persistence.
// All reads exclude tombstoned vouchers.
type VoucherRepository interface {
	// Create creates a new voucher; a code collision fails with ALREADY_EXISTS
	Create(ctx context.Context, tx DBTX, voucher *domain.Voucher) error

	// GetByID retrieves a voucher by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Voucher, error)

	// GetByCode retrieves a voucher by its code
	GetByCode(ctx context.Context, db DBTX, code string) (*domain.Voucher, error)

	// GetByCodeForUpdate retrieves a voucher and locks it until the transaction ends
	GetByCodeForUpdate(ctx context.Context, tx DBTX, code string) (*domain.Voucher, error)

	// Update persists a voucher guarded by its version; a stale version fails
	// with CONCURRENCY_CONFLICT. On success voucher.Version is incremented.
	Update(ctx context.Context, tx DBTX, voucher *domain.Voucher) error

	// CountByTemplateAndOwner counts vouchers of a template issued to a user
	CountByTemplateAndOwner(ctx context.Context, db DBTX, templateID, ownerID uuid.UUID) (int, error)

	// ListExpirable lists ACTIVE or PENDING vouchers whose expiresAt <= now
	ListExpirable(ctx context.Context, db DBTX, now time.Time, limit int) ([]*domain.Voucher, error)
}

// RedemptionRepository defines the interface for the redemption saga log
type RedemptionRepository interface {
	// Create creates a redemption; a reused idempotency key fails with ALREADY_EXISTS
	Create(ctx context.Context, tx DBTX, redemption *domain.Redemption) error

	// GetByID retrieves a redemption by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Redemption, error)

	// GetByIDForUpdate retrieves a redemption and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Redemption, error)

	// GetByIdempotencyKey retrieves a redemption by the caller's idempotency key
	GetByIdempotencyKey(ctx context.Context, db DBTX, key string) (*domain.Redemption, error)

	// Update persists saga progress
	Update(ctx context.Context, tx DBTX, redemption *domain.Redemption) error

	// ListPending lists PENDING redemptions last updated before olderThan
	ListPending(ctx context.Context, db DBTX, olderThan time.Time, limit int) ([]*domain.Redemption, error)
}
