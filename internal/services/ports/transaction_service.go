package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	domainports "github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// ItemRequest describes one transaction line
type ItemRequest struct {
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	ItemType       domain.ItemType
	Quantity       int
	ItemID         uuid.UUID
}

// RecordRequest contains parameters for recording a transaction
type RecordRequest struct {
	TransactionDate *time.Time // nil = now
	MerchantID      *uuid.UUID
	ExternalRef     *string // dedup key of gateway-originated transactions
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	Currency        string
	PaymentMethod   string
	Notes           string
	Type            domain.TransactionType
	Status          domain.TransactionStatus // "" = PENDING; only PENDING or COMPLETED
	Items           []ItemRequest
	UserID          uuid.UUID
}

// GatewayCallback is a status notification from the payment gateway.
// The record fields are used only when the reference is seen for the first time.
type GatewayCallback struct {
	Record      RecordRequest
	ExternalRef string
	Status      string
}

// ReconcileReport summarizes one stale-PENDING sweep
type ReconcileReport struct {
	Scanned      int
	Completed    int
	Failed       int
	Cancelled    int
	Refunded     int
	StillPending int
	Skipped      int
}

// TransactionService records transactions and drives their state machine
type TransactionService interface {
	// Record creates a transaction; a known ExternalRef returns the existing one unchanged
	Record(ctx context.Context, req RecordRequest) (*domain.Transaction, error)

	// RecordTx is Record inside the caller's database transaction
	RecordTx(ctx context.Context, tx domainports.DBTX, req RecordRequest) (*domain.Transaction, error)

	// Transition applies a status change from the transition table
	Transition(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error)

	// TransitionTx is Transition inside the caller's database transaction
	TransitionTx(ctx context.Context, tx domainports.DBTX, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error)

	// HandleGatewayCallback records-or-finds by external reference, then transitions
	HandleGatewayCallback(ctx context.Context, cb GatewayCallback) (*domain.Transaction, error)

	// ReconcileStale resolves PENDING transactions created before olderThan
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (*ReconcileReport, error)

	// Get returns a transaction with its items
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	// GetByExternalRef returns the transaction recorded for a gateway reference
	GetByExternalRef(ctx context.Context, externalRef string) (*domain.Transaction, error)
}
