package ports

import (
	"context"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	domainports "github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// EventEmitter writes domain events to the outbox inside the caller's
// database transaction, so an event exists if and only if its state change committed
type EventEmitter interface {
	Emit(ctx context.Context, tx domainports.DBTX, events ...domain.DomainEvent) error
}
