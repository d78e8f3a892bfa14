package ledger

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/internal/services/readcache"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
	"github.com/shopspring/decimal"
)

const defaultEntryLimit = 50

// Service implements svcports.LedgerService
type Service struct {
	db       ports.TransactionManager
	accounts ports.AccountRepository
	entries  ports.LedgerEntryRepository
	cache    *readcache.Loader[domain.PaymentAccount]
	retry    resilience.RetryPolicy
	logger   ports.Logger
	now      timeutil.Clock
}

var _ svcports.LedgerService = (*Service)(nil)

// Option configures the ledger service
type Option func(*Service)

// WithClock overrides the service clock
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithCache enables read-through caching of accounts
func WithCache(cache ports.Cache) Option {
	return func(s *Service) {
		s.cache = readcache.NewLoader[domain.PaymentAccount](cache, "account", "account:", readcache.DefaultTTL, s.logger)
	}
}

// WithRetryPolicy overrides how concurrency conflicts are retried
func WithRetryPolicy(policy resilience.RetryPolicy) Option {
	return func(s *Service) { s.retry = policy }
}

// NewService creates a new ledger service
func NewService(
	db ports.TransactionManager,
	accounts ports.AccountRepository,
	entries ports.LedgerEntryRepository,
	logger ports.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		db:       db,
		accounts: accounts,
		entries:  entries,
		retry:    resilience.DefaultConflictRetryPolicy(),
		logger:   logger,
		now:      timeutil.Now,
	}
	s.cache = readcache.NewLoader[domain.PaymentAccount](nil, "account", "account:", 0, logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenAccount creates an ACTIVE account with zero balance. The first account
// of a user becomes the default.
func (s *Service) OpenAccount(ctx context.Context, req svcports.OpenAccountRequest) (*domain.PaymentAccount, error) {
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	now := s.now()
	acct := &domain.PaymentAccount{
		ID:                uuid.New(),
		UserID:            req.UserID,
		AccountType:       req.AccountType,
		AccountIdentifier: req.AccountIdentifier,
		Balance:           decimal.Zero,
		Currency:          currency,
		Status:            domain.AccountStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := s.accounts.ListByUser(ctx, tx, req.UserID)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		acct.IsDefault = len(existing) == 0
		if err := s.accounts.Create(ctx, tx, acct); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment account opened",
		ports.Stringer("account_id", acct.ID),
		ports.Stringer("user_id", acct.UserID),
		ports.String("currency", acct.Currency),
	)
	return acct, nil
}

// Credit adds amount to an account
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.mutate(ctx, "credit", accountID, amount, currency, idempotencyKey)
}

// Debit removes amount from an account
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.mutate(ctx, "debit", accountID, amount, currency, idempotencyKey)
}

func (s *Service) mutate(ctx context.Context, kind string, accountID uuid.UUID, amount decimal.Decimal, currency, key string) (*domain.LedgerEntry, error) {
	if key == "" {
		key = kind + ":" + uuid.NewString()
	}

	var entry *domain.LedgerEntry
	err := resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			entry, err = s.apply(ctx, tx, kind, accountID, amount, currency, key)
			return err
		})
	})
	observability.RecordLedgerMutation(kind, domain.OutcomeLabel(err))
	if err != nil {
		s.logger.Warn("Ledger mutation failed",
			ports.String("kind", kind),
			ports.Stringer("account_id", accountID),
			ports.Stringer("amount", amount),
			ports.String("idempotency_key", key),
			ports.Err(err),
		)
		return nil, err
	}

	s.cache.Invalidate(ctx, accountID.String())
	return entry, nil
}

// apply performs one keyed mutation inside tx. The account row is locked
// before the key is checked, so concurrent replays of a key serialize.
func (s *Service) apply(ctx context.Context, tx ports.DBTX, kind string, accountID uuid.UUID, amount decimal.Decimal, currency, key string) (*domain.LedgerEntry, error) {
	currency, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	acct, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	delta := amount
	if kind == "debit" {
		delta = amount.Neg()
	}

	existing, err := s.entries.GetByIdempotencyKey(ctx, tx, accountID, key)
	if err == nil {
		if !existing.Amount.Equal(delta) {
			return nil, domain.NewDomainError(domain.ErrorCodeIdempotencyConflict, "idempotency key reused with a different amount").
				WithDetail("idempotency_key", key).
				WithDetail("recorded", existing.Amount.String())
		}
		s.logger.Debug("Replaying ledger entry",
			ports.Stringer("account_id", accountID),
			ports.String("idempotency_key", key),
		)
		return existing, nil
	}
	if !domain.IsNotFoundError(err) {
		return nil, fmt.Errorf("lookup ledger entry: %w", err)
	}

	now := s.now()
	if kind == "debit" {
		err = acct.Debit(amount, currency, now)
	} else {
		err = acct.Credit(amount, currency, now)
	}
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acct); err != nil {
		return nil, err
	}
	entry := domain.NewLedgerEntry(acct, delta, key, kind, now)
	if err := s.entries.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// Transfer debits from and credits to in one transaction. Accounts are locked
// in ascending id order so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (*svcports.TransferResult, error) {
	if from == to {
		return nil, domain.Errorf(domain.ErrorCodeValidationFailed, "cannot transfer to the same account")
	}
	if idempotencyKey == "" {
		idempotencyKey = "transfer:" + uuid.NewString()
	}

	result := &svcports.TransferResult{}
	err := resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			first, second := from, to
			if bytes.Compare(to[:], from[:]) < 0 {
				first, second = to, from
			}
			if _, err := s.accounts.GetByIDForUpdate(ctx, tx, first); err != nil {
				return err
			}
			if _, err := s.accounts.GetByIDForUpdate(ctx, tx, second); err != nil {
				return err
			}

			debit, err := s.apply(ctx, tx, "debit", from, amount, currency, idempotencyKey+":debit")
			if err != nil {
				return err
			}
			credit, err := s.apply(ctx, tx, "credit", to, amount, currency, idempotencyKey+":credit")
			if err != nil {
				return err
			}
			result.Debit, result.Credit = debit, credit
			return nil
		})
	})
	observability.RecordLedgerMutation("transfer", domain.OutcomeLabel(err))
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, from.String(), to.String())
	s.logger.Info("Transfer applied",
		ports.Stringer("from", from),
		ports.Stringer("to", to),
		ports.Stringer("amount", amount),
	)
	return result, nil
}

// GetAccount returns an account, read through the cache
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.PaymentAccount, error) {
	return s.cache.Get(ctx, id.String(), func(ctx context.Context) (*domain.PaymentAccount, error) {
		return s.accounts.GetByID(ctx, nil, id)
	})
}

// ListAccounts lists a user's accounts, default first
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.PaymentAccount, error) {
	return s.accounts.ListByUser(ctx, nil, userID)
}

// ListEntries lists the most recent ledger entries of an account
func (s *Service) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	return s.entries.ListByAccount(ctx, nil, accountID, limit)
}
