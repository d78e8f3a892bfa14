package ports

import (
	"context"

	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// EventPublisher delivers domain events to asynchronous consumers.
// Delivery is at-least-once; consumers deduplicate on DomainEvent.DedupKey.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
	Close() error
}
