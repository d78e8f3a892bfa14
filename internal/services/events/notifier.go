package events

import (
	"context"
	"fmt"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
)

// Notifier implements svcports.EventEmitter on the outbox table
type Notifier struct {
	outbox ports.OutboxRepository
}

var _ svcports.EventEmitter = (*Notifier)(nil)

// NewNotifier creates a new outbox notifier
func NewNotifier(outbox ports.OutboxRepository) *Notifier {
	return &Notifier{outbox: outbox}
}

// Emit enqueues events in tx. Nothing is published until the relay picks
// the rows up after commit.
func (n *Notifier) Emit(ctx context.Context, tx ports.DBTX, events ...domain.DomainEvent) error {
	for _, event := range events {
		if err := n.outbox.Enqueue(ctx, tx, domain.NewOutboxEntry(event)); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", event.Action, event.EntityID, err)
		}
	}
	return nil
}
