package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/voucher-ledger/internal/converters"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// OutboxRepository implements ports.OutboxRepository on the event_outbox table
type OutboxRepository struct {
	executor
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db ports.DBPort) *OutboxRepository {
	return &OutboxRepository{executor{pool: db.GetDB()}}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, tx ports.DBTX, entry *domain.OutboxEntry) error {
	e := entry.Event
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO event_outbox (event_id, entity_type, entity_id, action, occurred_at, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.EntityType), e.EntityID, e.Action, e.Timestamp, entry.Attempts, entry.NextAttemptAt, entry.CreatedAt)
	return mapError(err, "enqueue event", domain.ErrorCodeInternalError)
}

// ListDue returns due entries in enqueue order. SKIP LOCKED lets several relays share the table.
func (r *OutboxRepository) ListDue(ctx context.Context, db ports.DBTX, now time.Time, limit int) ([]*domain.OutboxEntry, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT event_id, entity_type, entity_id, action, occurred_at, attempts, next_attempt_at, last_error, published_at, created_at
		FROM event_outbox
		WHERE published_at IS NULL AND next_attempt_at <= $1
		ORDER BY seq
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limitOrAll(limit))
	if err != nil {
		return nil, mapError(err, "list due events", domain.ErrorCodeInternalError)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.OutboxEntry, error) {
		var (
			entry       domain.OutboxEntry
			publishedAt pgtype.Timestamptz
		)
		err := row.Scan(&entry.Event.ID, &entry.Event.EntityType, &entry.Event.EntityID, &entry.Event.Action,
			&entry.Event.Timestamp, &entry.Attempts, &entry.NextAttemptAt, &entry.LastError, &publishedAt, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry.PublishedAt = converters.FromNullableTimestamptz(publishedAt)
		entry.Event.Timestamp = entry.Event.Timestamp.UTC()
		entry.NextAttemptAt, entry.CreatedAt = entry.NextAttemptAt.UTC(), entry.CreatedAt.UTC()
		return &entry, nil
	})
	return out, mapError(err, "list due events", domain.ErrorCodeInternalError)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, db ports.DBTX, eventID uuid.UUID, at time.Time) error {
	_, err := r.on(db).Exec(ctx, `UPDATE event_outbox SET published_at = $2 WHERE event_id = $1`, eventID, at)
	return mapError(err, "mark event published", domain.ErrorCodeInternalError)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, db ports.DBTX, eventID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	_, err := r.on(db).Exec(ctx, `
		UPDATE event_outbox SET attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE event_id = $1`, eventID, attempts, nextAttemptAt, lastErr)
	return mapError(err, "mark event failed", domain.ErrorCodeInternalError)
}
