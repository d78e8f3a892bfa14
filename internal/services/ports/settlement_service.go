package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// PeriodicReport summarizes one scheduled settlement round
type PeriodicReport struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Created     []*domain.PaymentSettlement
	Skipped     int
	Failed      int
}

// SettlementService aggregates merchant earnings into payout batches
type SettlementService interface {
	// RunSettlement creates a PENDING settlement over [periodStart, periodEnd)
	RunSettlement(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.PaymentSettlement, error)

	// Preview computes what RunSettlement would produce without persisting it
	Preview(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.PaymentSettlement, error)

	// CompleteSettlement records the payout
	CompleteSettlement(ctx context.Context, id uuid.UUID, bankReference string) (*domain.PaymentSettlement, error)

	// FailSettlement marks the payout failed, releasing its period
	FailSettlement(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentSettlement, error)

	// CancelSettlement withdraws a PENDING settlement
	CancelSettlement(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentSettlement, error)

	// RunPeriodicSettlements settles [periodEnd-cadence, periodEnd) for each
	// merchant; an empty list settles every merchant with completed transactions
	RunPeriodicSettlements(ctx context.Context, merchants []uuid.UUID, periodEnd time.Time, cadence time.Duration) (*PeriodicReport, error)

	// Get returns a settlement
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSettlement, error)

	// ListByMerchant lists a merchant's settlements, newest first
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]*domain.PaymentSettlement, error)
}
