package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
)

// DefaultReconcileBatch bounds one stale-PENDING sweep
const DefaultReconcileBatch = 100

// Service implements svcports.TransactionService
type Service struct {
	db       ports.TransactionManager
	txns     ports.TransactionRepository
	gateway  ports.GatewayStatusChecker
	events   svcports.EventEmitter
	timeouts *resilience.TimeoutConfig
	retry    resilience.RetryPolicy
	logger   ports.Logger
	now      timeutil.Clock
}

var _ svcports.TransactionService = (*Service)(nil)

// Option configures the transaction service
type Option func(*Service)

// WithClock overrides the service clock
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithRetryPolicy overrides how concurrency conflicts are retried
func WithRetryPolicy(policy resilience.RetryPolicy) Option {
	return func(s *Service) { s.retry = policy }
}

// NewService creates a new transaction service. gateway may be nil, in
// which case nothing can confirm a stale transaction and the sweep fails
// every one of them closed.
func NewService(
	db ports.TransactionManager,
	txns ports.TransactionRepository,
	gateway ports.GatewayStatusChecker,
	events svcports.EventEmitter,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		db:       db,
		txns:     txns,
		gateway:  gateway,
		events:   events,
		timeouts: timeouts,
		retry:    resilience.DefaultConflictRetryPolicy(),
		logger:   logger,
		now:      timeutil.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func retryableOrDuplicate(err error) bool {
	return domain.IsRetryable(err) || domain.IsDomainError(err, domain.ErrorCodeAlreadyExists)
}

// Record creates a transaction. Replaying an ExternalRef returns the stored
// transaction unchanged; a lost insert race is resolved by re-reading.
func (s *Service) Record(ctx context.Context, req svcports.RecordRequest) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := resilience.Retry(ctx, s.retry, retryableOrDuplicate, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			txn, err = s.RecordTx(ctx, tx, req)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("Failed to record transaction",
			ports.String("type", string(req.Type)),
			ports.String("external_ref", derefString(req.ExternalRef)),
			ports.Err(err),
		)
		return nil, err
	}
	return txn, nil
}

// RecordTx records inside the caller's transaction
func (s *Service) RecordTx(ctx context.Context, tx ports.DBTX, req svcports.RecordRequest) (*domain.Transaction, error) {
	if req.ExternalRef != nil && *req.ExternalRef != "" {
		existing, err := s.txns.GetByExternalRef(ctx, tx, *req.ExternalRef)
		if err == nil {
			s.logger.Info("Returning existing transaction for external reference",
				ports.String("external_ref", *req.ExternalRef),
				ports.Stringer("transaction_id", existing.ID),
			)
			return existing, nil
		}
		if !domain.IsNotFoundError(err) {
			return nil, fmt.Errorf("lookup external ref: %w", err)
		}
	}

	txn, err := s.buildTransaction(req)
	if err != nil {
		return nil, err
	}
	if err := s.txns.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	events := []domain.DomainEvent{
		domain.NewDomainEvent(domain.EntityTypeTransaction, txn.ID, domain.ActionTransactionRecorded, txn.CreatedAt),
	}
	if txn.Status != domain.TransactionStatusPending {
		events = append(events, domain.NewDomainEvent(domain.EntityTypeTransaction, txn.ID,
			domain.TransactionStatusAction(txn.Status), txn.CreatedAt))
	}
	if err := s.events.Emit(ctx, tx, events...); err != nil {
		return nil, err
	}

	observability.RecordTransaction(string(txn.Type), string(txn.Status))
	s.logger.Info("Transaction recorded",
		ports.Stringer("transaction_id", txn.ID),
		ports.String("type", string(txn.Type)),
		ports.String("status", string(txn.Status)),
		ports.Stringer("amount", txn.Amount),
	)
	return txn, nil
}

func (s *Service) buildTransaction(req svcports.RecordRequest) (*domain.Transaction, error) {
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	status := req.Status
	switch status {
	case "":
		status = domain.TransactionStatusPending
	case domain.TransactionStatusPending, domain.TransactionStatusCompleted:
	default:
		return nil, domain.Errorf(domain.ErrorCodeValidationFailed,
			"a transaction cannot be recorded as %s", status)
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:              uuid.New(),
		UserID:          req.UserID,
		MerchantID:      req.MerchantID,
		ExternalRef:     req.ExternalRef,
		Type:            req.Type,
		Status:          status,
		Amount:          req.Amount,
		FeeAmount:       req.Fee,
		Currency:        currency,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		TransactionDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.TransactionDate != nil {
		txn.TransactionDate = req.TransactionDate.UTC()
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	for _, ir := range req.Items {
		quantity := ir.Quantity
		if quantity == 0 {
			quantity = 1
		}
		item, err := domain.NewTransactionItem(ir.ItemType, ir.ItemID, quantity, ir.UnitPrice, ir.DiscountAmount)
		if err != nil {
			return nil, err
		}
		item.TransactionID = txn.ID
		item.CreatedAt = now
		txn.Items = append(txn.Items, item)
	}
	return txn, nil
}

// Transition applies a status change. Anything outside the transition
// table, including a move to the current status, is rejected.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			txn, err = s.txns.GetByIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			return s.transitionTx(ctx, tx, txn, status)
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// TransitionTx is Transition inside the caller's database transaction
func (s *Service) TransitionTx(ctx context.Context, tx ports.DBTX, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	txn, err := s.txns.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transitionTx(ctx, tx, txn, status); err != nil {
		return nil, err
	}
	return txn, nil
}

// transitionTx moves a locked transaction to next inside tx
func (s *Service) transitionTx(ctx context.Context, tx ports.DBTX, txn *domain.Transaction, next domain.TransactionStatus) error {
	from := txn.Status
	now := s.now()
	if err := txn.TransitionTo(next, now); err != nil {
		return err
	}
	if err := s.txns.UpdateStatus(ctx, tx, txn.ID, next, now); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if err := s.events.Emit(ctx, tx,
		domain.NewDomainEvent(domain.EntityTypeTransaction, txn.ID, domain.TransactionStatusAction(next), now),
	); err != nil {
		return err
	}

	observability.RecordTransactionTransition(string(next))
	s.logger.Info("Transaction status changed",
		ports.Stringer("transaction_id", txn.ID),
		ports.String("from", string(from)),
		ports.String("to", string(next)),
	)
	return nil
}

// advanceTx applies the gateway's view of a transaction. A status already
// applied is a replayed callback and succeeds without effect. A refund
// reported for a PENDING transaction passes through COMPLETED.
func (s *Service) advanceTx(ctx context.Context, tx ports.DBTX, txn *domain.Transaction, reported domain.TransactionStatus) error {
	if txn.Status == reported {
		return nil
	}
	if reported == domain.TransactionStatusRefunded && txn.Status == domain.TransactionStatusPending {
		if err := s.transitionTx(ctx, tx, txn, domain.TransactionStatusCompleted); err != nil {
			return err
		}
	}
	return s.transitionTx(ctx, tx, txn, reported)
}

// HandleGatewayCallback records-or-finds the transaction for the callback's
// reference, then applies the reported status, all in one transaction
func (s *Service) HandleGatewayCallback(ctx context.Context, cb svcports.GatewayCallback) (*domain.Transaction, error) {
	if cb.ExternalRef == "" {
		return nil, domain.Errorf(domain.ErrorCodeValidationMissingField, "callback external_ref is required")
	}
	reported, err := domain.ParseTransactionStatus(cb.Status)
	if err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	err = resilience.Retry(ctx, s.retry, retryableOrDuplicate, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			req := cb.Record
			ref := cb.ExternalRef
			req.ExternalRef = &ref
			req.Status = domain.TransactionStatusPending

			recorded, err := s.RecordTx(ctx, tx, req)
			if err != nil {
				return err
			}
			txn, err = s.txns.GetByIDForUpdate(ctx, tx, recorded.ID)
			if err != nil {
				return err
			}
			if reported == domain.TransactionStatusPending {
				return nil
			}
			return s.advanceTx(ctx, tx, txn, reported)
		})
	})
	if err != nil {
		s.logger.Warn("Gateway callback rejected",
			ports.String("external_ref", cb.ExternalRef),
			ports.String("status", cb.Status),
			ports.Err(err),
		)
		return nil, err
	}
	return txn, nil
}

// ReconcileStale resolves PENDING transactions created before olderThan.
// The gateway's answer is applied when it is final; an unknown reference, a
// failed query or a missing gateway fails the transaction closed. Transactions the gateway
// still reports as PENDING are left for a later sweep.
func (s *Service) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (*svcports.ReconcileReport, error) {
	if limit <= 0 {
		limit = DefaultReconcileBatch
	}
	stale, err := s.txns.ListStalePending(ctx, nil, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}

	report := &svcports.ReconcileReport{Scanned: len(stale)}
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		target := s.resolveStatus(ctx, candidate)
		if target == domain.TransactionStatusPending {
			report.StillPending++
			observability.RecordReconciliation("still_pending")
			continue
		}

		err := resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
			return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
				txn, err := s.txns.GetByIDForUpdate(ctx, tx, candidate.ID)
				if err != nil {
					return err
				}
				if txn.Status != domain.TransactionStatusPending {
					return errAlreadyResolved
				}
				return s.advanceTx(ctx, tx, txn, target)
			})
		})
		switch {
		case errors.Is(err, errAlreadyResolved):
			report.Skipped++
			observability.RecordReconciliation("skipped")
			continue
		case err != nil:
			report.Skipped++
			observability.RecordReconciliation("error")
			s.logger.Error("Failed to reconcile transaction",
				ports.Stringer("transaction_id", candidate.ID),
				ports.Err(err),
			)
			continue
		}

		switch target {
		case domain.TransactionStatusCompleted:
			report.Completed++
		case domain.TransactionStatusCancelled:
			report.Cancelled++
		case domain.TransactionStatusRefunded:
			report.Refunded++
		default:
			report.Failed++
		}
		observability.RecordReconciliation(string(target))
	}

	s.logger.Info("Stale transaction sweep finished",
		ports.Int("scanned", report.Scanned),
		ports.Int("completed", report.Completed),
		ports.Int("failed", report.Failed),
		ports.Int("cancelled", report.Cancelled),
		ports.Int("refunded", report.Refunded),
		ports.Int("still_pending", report.StillPending),
		ports.Int("skipped", report.Skipped),
	)
	return report, nil
}

var errAlreadyResolved = domain.Errorf(domain.ErrorCodeInvalidStateTransition, "transaction is no longer pending")

// resolveStatus asks the gateway for the authoritative status of txn
func (s *Service) resolveStatus(ctx context.Context, txn *domain.Transaction) domain.TransactionStatus {
	ref := txn.GetExternalRef()
	if s.gateway == nil || ref == "" {
		return domain.TransactionStatusFailed
	}

	gwCtx, cancel := s.timeouts.GatewayContext(ctx)
	defer cancel()
	status, err := s.gateway.QueryStatus(gwCtx, ref)
	if err != nil {
		s.logger.Warn("Gateway status query failed, failing transaction closed",
			ports.Stringer("transaction_id", txn.ID),
			ports.String("external_ref", ref),
			ports.Err(err),
		)
		return domain.TransactionStatusFailed
	}
	return status
}

// Get returns a transaction with its items
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.txns.GetByID(ctx, nil, id)
}

// GetByExternalRef returns the transaction recorded for a gateway reference
func (s *Service) GetByExternalRef(ctx context.Context, externalRef string) (*domain.Transaction, error) {
	if externalRef == "" {
		return nil, domain.Errorf(domain.ErrorCodeValidationMissingField, "external_ref is required")
	}
	return s.txns.GetByExternalRef(ctx, nil, externalRef)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
