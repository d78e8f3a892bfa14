package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds merchants settled in parallel by a periodic run
	DefaultConcurrency = 8

	defaultListLimit = 50
)

// Service implements svcports.SettlementService
type Service struct {
	db          ports.TransactionManager
	settlements ports.SettlementRepository
	txns        ports.TransactionRepository
	events      svcports.EventEmitter
	timeouts    *resilience.TimeoutConfig
	logger      ports.Logger
	now         timeutil.Clock
	concurrency int
}

var _ svcports.SettlementService = (*Service)(nil)

// Option configures the settlement service
type Option func(*Service)

// WithClock overrides the service clock
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithConcurrency sets how many merchants a periodic run settles at once
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new settlement service
func NewService(
	db ports.TransactionManager,
	settlements ports.SettlementRepository,
	txns ports.TransactionRepository,
	events svcports.EventEmitter,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		db:          db,
		settlements: settlements,
		txns:        txns,
		events:      events,
		timeouts:    timeouts,
		logger:      logger,
		now:         timeutil.Now,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSettlement creates a PENDING settlement of the merchant's COMPLETED
// transactions dated in [periodStart, periodEnd). Runs for one merchant
// serialize on the merchant lock, so two overlapping runs cannot both commit.
func (s *Service) RunSettlement(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.PaymentSettlement, error) {
	settlement, err := s.run(ctx, merchantID, periodStart, periodEnd, false)
	if err != nil {
		observability.RecordSettlement(domain.OutcomeLabel(err))
		return nil, err
	}
	return settlement, nil
}

func (s *Service) run(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time, skipEmpty bool) (*domain.PaymentSettlement, error) {
	if merchantID == uuid.Nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "merchant id is required")
	}
	periodStart, periodEnd = periodStart.UTC(), periodEnd.UTC()
	if err := domain.ValidatePeriod(periodStart, periodEnd); err != nil {
		return nil, err
	}

	ctx, cancel := s.timeouts.SettlementContext(ctx)
	defer cancel()

	var settlement *domain.PaymentSettlement
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.settlements.LockMerchant(ctx, tx, merchantID); err != nil {
			return fmt.Errorf("lock merchant settlements: %w", err)
		}

		computed, err := s.compute(ctx, tx, merchantID, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if skipEmpty && computed.TransactionCount == 0 {
			return nil
		}
		if err := s.settlements.Create(ctx, tx, computed); err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}
		settlement = computed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, nil
	}

	observability.RecordSettlement(string(settlement.Status))
	s.logger.Info("Settlement created",
		ports.Stringer("settlement_id", settlement.ID),
		ports.Stringer("merchant_id", merchantID),
		ports.String("period_start", periodStart.Format(time.RFC3339)),
		ports.String("period_end", periodEnd.Format(time.RFC3339)),
		ports.Int("transaction_count", settlement.TransactionCount),
		ports.String("net_payout", settlement.NetPayoutAmount.StringFixed(2)),
	)
	return settlement, nil
}

// compute rejects overlapping periods and sums the included transactions
func (s *Service) compute(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, start, end time.Time) (*domain.PaymentSettlement, error) {
	overlapping, err := s.settlements.ListOverlapping(ctx, db, merchantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list overlapping settlements: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeOverlappingPeriod, "settlement period overlaps an existing settlement").
			WithDetail("merchant_id", merchantID.String()).
			WithDetail("existing_settlement_id", overlapping[0].ID.String())
	}

	txns, err := s.txns.ListCompletedForSettlement(ctx, db, merchantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list settled transactions: %w", err)
	}
	var totals domain.SettlementTotals
	for _, txn := range txns {
		if err := totals.Add(txn); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
	}
	return domain.NewSettlement(merchantID, start, end, totals, s.now().UTC()), nil
}

// Preview computes what RunSettlement would produce without persisting it
func (s *Service) Preview(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.PaymentSettlement, error) {
	periodStart, periodEnd = periodStart.UTC(), periodEnd.UTC()
	if err := domain.ValidatePeriod(periodStart, periodEnd); err != nil {
		return nil, err
	}
	ctx, cancel := s.timeouts.SettlementContext(ctx)
	defer cancel()

	var preview *domain.PaymentSettlement
	err := s.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		preview, err = s.compute(ctx, tx, merchantID, periodStart, periodEnd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// CompleteSettlement records the payout and emits settlement-completed
func (s *Service) CompleteSettlement(ctx context.Context, id uuid.UUID, bankReference string) (*domain.PaymentSettlement, error) {
	settlement, err := s.transition(ctx, id, domain.ActionSettlementCompleted, func(st *domain.PaymentSettlement, now time.Time) error {
		return st.Complete(bankReference, now)
	})
	if err != nil {
		return nil, err
	}
	observability.RecordSettlementPayout(settlement.NetPayoutAmount, settlement.Currency)
	return settlement, nil
}

// FailSettlement marks the payout failed and emits settlement-failed
func (s *Service) FailSettlement(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentSettlement, error) {
	return s.transition(ctx, id, domain.ActionSettlementFailed, func(st *domain.PaymentSettlement, now time.Time) error {
		return st.Fail(reason, now)
	})
}

// CancelSettlement withdraws a PENDING settlement, releasing its period
func (s *Service) CancelSettlement(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentSettlement, error) {
	return s.transition(ctx, id, "", func(st *domain.PaymentSettlement, now time.Time) error {
		return st.Cancel(reason, now)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action string, apply func(*domain.PaymentSettlement, time.Time) error) (*domain.PaymentSettlement, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	var settlement *domain.PaymentSettlement
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		st, err := s.settlements.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := apply(st, now); err != nil {
			return err
		}
		if err := s.settlements.Update(ctx, tx, st); err != nil {
			return fmt.Errorf("update settlement: %w", err)
		}
		if action != "" {
			if err := s.events.Emit(ctx, tx, domain.NewDomainEvent(domain.EntityTypeSettlement, st.ID, action, now)); err != nil {
				return err
			}
		}
		settlement = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordSettlement(string(settlement.Status))
	s.logger.Info("Settlement transitioned",
		ports.Stringer("settlement_id", settlement.ID),
		ports.String("status", string(settlement.Status)),
	)
	return settlement, nil
}

// RunPeriodicSettlements settles [periodEnd-cadence, periodEnd) for each
// merchant, with periodEnd truncated to midnight UTC. Merchants whose period is already covered are skipped; a failing
// merchant does not stop the others.
func (s *Service) RunPeriodicSettlements(ctx context.Context, merchants []uuid.UUID, periodEnd time.Time, cadence time.Duration) (*svcports.PeriodicReport, error) {
	if cadence <= 0 {
		return nil, domain.Errorf(domain.ErrorCodeValidationFailed, "settlement cadence must be positive, got %s", cadence)
	}
	periodStart, periodEnd := timeutil.PreviousWindow(periodEnd.UTC(), cadence)

	report := &svcports.PeriodicReport{PeriodStart: periodStart, PeriodEnd: periodEnd}
	skipEmpty := len(merchants) == 0
	if skipEmpty {
		var err error
		merchants, err = s.txns.ListMerchantsWithCompleted(ctx, nil, periodStart, periodEnd)
		if err != nil {
			return nil, fmt.Errorf("list merchants to settle: %w", err)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, merchantID := range merchants {
		merchantID := merchantID
		g.Go(func() error {
			settlement, err := s.run(gctx, merchantID, periodStart, periodEnd, skipEmpty)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case domain.IsDomainError(err, domain.ErrorCodeOverlappingPeriod):
				report.Skipped++
			case err != nil:
				report.Failed++
				observability.RecordSettlement(domain.OutcomeLabel(err))
				s.logger.Error("Periodic settlement failed",
					ports.Stringer("merchant_id", merchantID),
					ports.Err(err),
				)
			case settlement == nil:
				report.Skipped++
			default:
				report.Created = append(report.Created, settlement)
			}
			// Per-merchant failures are reported, not propagated
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.Info("Periodic settlements finished",
		ports.String("period_start", periodStart.Format(time.RFC3339)),
		ports.String("period_end", periodEnd.Format(time.RFC3339)),
		ports.Int("created", len(report.Created)),
		ports.Int("skipped", report.Skipped),
		ports.Int("failed", report.Failed),
	)
	return report, nil
}

// Get returns a settlement
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSettlement, error) {
	return s.settlements.GetByID(ctx, nil, id)
}

// ListByMerchant lists a merchant's settlements, newest period first
func (s *Service) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]*domain.PaymentSettlement, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.settlements.ListByMerchant(ctx, nil, merchantID, limit)
}
