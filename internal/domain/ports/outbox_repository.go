package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// OutboxRepository stores domain events written in the same commit as the
// state change they describe
type OutboxRepository interface {
	// Enqueue inserts an entry inside the caller's transaction
	Enqueue(ctx context.Context, tx DBTX, entry *domain.OutboxEntry) error

	// ListDue lists unpublished entries whose next attempt is at or before now
	ListDue(ctx context.Context, db DBTX, now time.Time, limit int) ([]*domain.OutboxEntry, error)

	// MarkPublished records successful delivery
	MarkPublished(ctx context.Context, db DBTX, eventID uuid.UUID, at time.Time) error

	// MarkFailed records a failed attempt and schedules the next one
	MarkFailed(ctx context.Context, db DBTX, eventID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error
}
