package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType names the aggregate an event is about
type EntityType string

const (
	EntityTypeVoucher     EntityType = "voucher"
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeSettlement  EntityType = "settlement"
)

// Event actions
const (
	ActionVoucherIssued       = "voucher-issued"
	ActionVoucherRedeemed     = "voucher-redeemed"
	ActionVoucherCancelled    = "voucher-cancelled"
	ActionVoucherExpired      = "voucher-expired"
	ActionVoucherGifted       = "voucher-gifted"
	ActionTransactionRecorded = "transaction-recorded"
	ActionSettlementCompleted = "settlement-completed"
	ActionSettlementFailed    = "settlement-failed"
)

// TransactionStatusAction returns the "transaction-<status>" action for a status
func TransactionStatusAction(status TransactionStatus) string {
	return "transaction-" + strings.ToLower(string(status))
}

// DomainEvent is emitted once per committed state change
type DomainEvent struct {
	Timestamp  time.Time  `json:"timestamp"`
	EntityType EntityType `json:"entityType"`
	Action     string     `json:"action"`
	ID         uuid.UUID  `json:"id"`
	EntityID   uuid.UUID  `json:"entityId"`
}

// NewDomainEvent builds an event stamped at now
func NewDomainEvent(entityType EntityType, entityID uuid.UUID, action string, now time.Time) DomainEvent {
	return DomainEvent{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  now,
	}
}

// DedupKey is the key consumers deduplicate on: (entityId, action, timestamp)
func (e DomainEvent) DedupKey() string {
	return fmt.Sprintf("%s:%s:%d", e.EntityID, e.Action, e.Timestamp.UnixMicro())
}

// OutboxEntry is an event waiting in the outbox for publication
type OutboxEntry struct {
	NextAttemptAt time.Time   `json:"next_attempt_at"`
	CreatedAt     time.Time   `json:"created_at"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
	Event         DomainEvent `json:"event"`
	Attempts      int         `json:"attempts"`
}

// NewOutboxEntry wraps an event for immediate publication. NextAttemptAt is
// left zero so the first attempt is due as soon as the entry commits,
// whatever the writer's clock said; only retries are scheduled.
func NewOutboxEntry(event DomainEvent) *OutboxEntry {
	return &OutboxEntry{
		Event:     event,
		CreatedAt: event.Timestamp,
	}
}

// IsPublished reports whether the relay has delivered the entry
func (o *OutboxEntry) IsPublished() bool {
	return o.PublishedAt != nil
}
