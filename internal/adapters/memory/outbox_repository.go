package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// OutboxRepository implements ports.OutboxRepository
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates an outbox backed by store
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, tx ports.DBTX, entry *domain.OutboxEntry) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.outbox[entry.Event.ID]; ok {
			return alreadyExists("outbox entry", entry.Event.ID)
		}
		t.outbox[entry.Event.ID] = outboxRow{entry: *entry, seq: r.store.nextSeq()}
		return nil
	})
}

// ListDue returns due entries in enqueue order
func (r *OutboxRepository) ListDue(ctx context.Context, db ports.DBTX, now time.Time, limit int) ([]*domain.OutboxEntry, error) {
	var rows []outboxRow
	err := r.store.view(ctx, func(t *tables) error {
		for _, row := range t.outbox {
			if row.entry.PublishedAt == nil && !row.entry.NextAttemptAt.After(now) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]*domain.OutboxEntry, len(rows))
	for i := range rows {
		e := rows[i].entry
		out[i] = &e
	}
	return out, err
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, db ports.DBTX, eventID uuid.UUID, at time.Time) error {
	return r.store.view(ctx, func(t *tables) error {
		row, ok := t.outbox[eventID]
		if !ok {
			return notFound(domain.ErrorCodeInternalError, "outbox entry", eventID)
		}
		row.entry.PublishedAt = &at
		t.outbox[eventID] = row
		return nil
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, db ports.DBTX, eventID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	return r.store.view(ctx, func(t *tables) error {
		row, ok := t.outbox[eventID]
		if !ok {
			return notFound(domain.ErrorCodeInternalError, "outbox entry", eventID)
		}
		row.entry.Attempts = attempts
		row.entry.NextAttemptAt = nextAttemptAt
		row.entry.LastError = lastErr
		t.outbox[eventID] = row
		return nil
	})
}

// Pending returns every unpublished entry in enqueue order
func (r *OutboxRepository) Pending(ctx context.Context) []*domain.OutboxEntry {
	entries, _ := r.ListDue(ctx, nil, time.Unix(1<<40, 0), 0)
	return entries
}
