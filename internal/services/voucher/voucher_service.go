package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const (
	// maxCodeAttempts bounds regeneration of colliding voucher codes
	maxCodeAttempts = 5

	defaultExpireBatch = 500
)

// errExpiredOnRead marks a voucher that was found expired and has just been
// persisted as EXPIRED; the operation that found it still fails
var errExpiredOnRead = errors.New("voucher expired on read")

// Service implements svcports.VoucherService
type Service struct {
	db          ports.TransactionManager
	templates   ports.TemplateRepository
	vouchers    ports.VoucherRepository
	redemptions ports.RedemptionRepository
	ledger      svcports.LedgerService
	txns        svcports.TransactionService
	events      svcports.EventEmitter
	screener    ports.RedemptionScreener
	cache       *readcache.Loader[domain.Voucher]
	timeouts    *resilience.TimeoutConfig
	retry       resilience.RetryPolicy
	logger      ports.Logger
	now         timeutil.Clock
	feeRate     decimal.Decimal
}

var _ svcports.VoucherService = (*Service)(nil)

// Option configures the voucher service
type Option func(*Service)

// WithClock overrides the service clock
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithCache enables read-through caching of vouchers by code
func WithCache(cache ports.Cache) Option {
	return func(s *Service) {
		s.cache = readcache.NewLoader[domain.Voucher](cache, "voucher", "voucher:", readcache.DefaultTTL, s.logger)
	}
}

// WithScreener installs the pre-redemption screening hook
func WithScreener(screener ports.RedemptionScreener) Option {
	return func(s *Service) { s.screener = screener }
}

// WithFeeRate sets the share of each redemption kept as merchant fee
func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.feeRate = rate }
}

// WithRetryPolicy overrides how concurrency conflicts are retried
func WithRetryPolicy(policy resilience.RetryPolicy) Option {
	return func(s *Service) { s.retry = policy }
}

// NewService creates a new voucher service
func NewService(
	db ports.TransactionManager,
	templates ports.TemplateRepository,
	vouchers ports.VoucherRepository,
	redemptions ports.RedemptionRepository,
	ledger svcports.LedgerService,
	txns svcports.TransactionService,
	events svcports.EventEmitter,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		db:          db,
		templates:   templates,
		vouchers:    vouchers,
		redemptions: redemptions,
		ledger:      ledger,
		txns:        txns,
		events:      events,
		timeouts:    timeouts,
		retry:       resilience.DefaultConflictRetryPolicy(),
		logger:      logger,
		now:         timeutil.Now,
		feeRate:     decimal.Zero,
	}
	s.cache = readcache.NewLoader[domain.Voucher](nil, "voucher", "voucher:", 0, logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) voucherEvent(v *domain.Voucher, action string, now time.Time) domain.DomainEvent {
	return domain.NewDomainEvent(domain.EntityTypeVoucher, v.ID, action, now)
}

// CreateTemplate validates and stores a template
func (s *Service) CreateTemplate(ctx context.Context, req svcports.CreateTemplateRequest) (*domain.VoucherTemplate, error) {
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	perUser := req.UsageLimitPerUser
	if perUser == 0 {
		perUser = 1
	}

	now := s.now()
	tpl := &domain.VoucherTemplate{
		ID:                uuid.New(),
		MerchantID:        req.MerchantID,
		Name:              req.Name,
		Description:       req.Description,
		Kind:              req.Kind,
		Value:             req.Value,
		ValueType:         req.ValueType,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimitPerUser: perUser,
		TotalUsageLimit:   req.TotalUsageLimit,
		ValidFrom:         req.ValidFrom.UTC(),
		ValidUntil:        req.ValidUntil.UTC(),
		IsActive:          true,
		PartialRedemption: req.PartialRedemption,
		Currency:          currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.templates.Create(ctx, tx, tpl)
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("Voucher template created",
		ports.Stringer("template_id", tpl.ID),
		ports.Stringer("merchant_id", tpl.MerchantID),
		ports.Stringer("value", tpl.Value),
		ports.String("value_type", string(tpl.ValueType)),
	)
	return tpl, nil
}

// DeactivateTemplate withdraws a template from further issuance. Issued
// vouchers are unaffected.
func (s *Service) DeactivateTemplate(ctx context.Context, templateID uuid.UUID) (*domain.VoucherTemplate, error) {
	var tpl *domain.VoucherTemplate
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		tpl, err = s.templates.GetByIDForUpdate(ctx, tx, templateID)
		if err != nil {
			return err
		}
		tpl.Deactivate(s.now())
		return s.templates.Update(ctx, tx, tpl)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Voucher template deactivated", ports.Stringer("template_id", templateID))
	return tpl, nil
}

// Issue creates an ACTIVE voucher. The template row stays locked while
// limits are counted so concurrent issuance cannot exceed them. A code
// collision regenerates the code.
func (s *Service) Issue(ctx context.Context, req svcports.IssueRequest) (*domain.Voucher, error) {
	policy := resilience.RetryPolicy{MaxAttempts: maxCodeAttempts, Backoff: s.retry.Backoff}
	retryable := func(err error) bool {
		return domain.IsRetryable(err) || domain.IsDomainError(err, domain.ErrorCodeAlreadyExists)
	}

	var v *domain.Voucher
	err := resilience.Retry(ctx, policy, retryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			v, err = s.issueTx(ctx, tx, req)
			return err
		})
	})
	observability.RecordVoucherOperation("issue", domain.OutcomeLabel(err))
	if err != nil {
		s.logger.Warn("Voucher issuance failed",
			ports.Stringer("template_id", req.TemplateID),
			ports.Err(err),
		)
		return nil, err
	}

	s.logger.Info("Voucher issued",
		ports.Stringer("voucher_id", v.ID),
		ports.Stringer("template_id", v.TemplateID),
		ports.Stringer("value", v.CurrentValue),
	)
	return v, nil
}

func (s *Service) issueTx(ctx context.Context, tx ports.DBTX, req svcports.IssueRequest) (*domain.Voucher, error) {
	tpl, err := s.templates.GetByIDForUpdate(ctx, tx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !tpl.IsAvailable(now) {
		return nil, domain.NewDomainError(domain.ErrorCodeTemplateUnavailable, "template is inactive or outside its validity window").
			WithDetail("template_id", tpl.ID.String())
	}
	if tpl.TotalLimitReached() {
		return nil, domain.NewDomainError(domain.ErrorCodeUsageLimitExceeded, "template total usage limit reached").
			WithDetail("template_id", tpl.ID.String())
	}
	if req.OwnerID != nil {
		owned, err := s.vouchers.CountByTemplateAndOwner(ctx, tx, tpl.ID, *req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("count owned vouchers: %w", err)
		}
		if owned >= tpl.UsageLimitPerUser {
			return nil, domain.NewDomainError(domain.ErrorCodeUsageLimitExceeded, "per-user usage limit reached").
				WithDetail("template_id", tpl.ID.String()).
				WithDetail("owner_id", req.OwnerID.String())
		}
	}

	code, err := domain.GenerateVoucherCode()
	if err != nil {
		return nil, err
	}
	v := domain.NewVoucher(tpl, code, req.OwnerID, req.SenderID, req.GiftMessage, now)
	if err := s.vouchers.Create(ctx, tx, v); err != nil {
		return nil, err
	}

	tpl.IssuedCount++
	tpl.UpdatedAt = now
	if err := s.templates.Update(ctx, tx, tpl); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	if err := s.events.Emit(ctx, tx, s.voucherEvent(v, domain.ActionVoucherIssued, now)); err != nil {
		return nil, err
	}
	return v, nil
}

// lockLive locks a voucher by code and persists lazy expiry. When the
// voucher had expired, the expiry is written and errExpiredOnRead returned
// so the caller commits and then reports VOUCHER_EXPIRED.
func (s *Service) lockLive(ctx context.Context, tx ports.DBTX, code string, now time.Time) (*domain.Voucher, error) {
	v, err := s.vouchers.GetByCodeForUpdate(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if v.IsTerminal() || !v.IsExpiredAt(now) {
		return v, nil
	}
	if err := s.expireTx(ctx, tx, v, now); err != nil {
		return nil, err
	}
	return v, errExpiredOnRead
}

func (s *Service) expireTx(ctx context.Context, tx ports.DBTX, v *domain.Voucher, now time.Time) error {
	if err := v.MarkExpired(now); err != nil {
		return err
	}
	if err := s.vouchers.Update(ctx, tx, v); err != nil {
		return err
	}
	return s.events.Emit(ctx, tx, s.voucherEvent(v, domain.ActionVoucherExpired, now))
}

// mutate runs fn on the locked voucher in one transaction. Lazy expiry found
// on the way commits and surfaces as VOUCHER_EXPIRED.
func (s *Service) mutate(ctx context.Context, op, code string, fn func(ctx context.Context, tx ports.DBTX, v *domain.Voucher, now time.Time) error) (*domain.Voucher, error) {
	if code == "" {
		return nil, domain.Errorf(domain.ErrorCodeValidationMissingField, "voucher code is required")
	}

	var v *domain.Voucher
	var expired bool
	err := resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			now := s.now()
			var err error
			v, err = s.lockLive(ctx, tx, code, now)
			if errors.Is(err, errExpiredOnRead) {
				expired = true
				return nil
			}
			if err != nil {
				return err
			}
			return fn(ctx, tx, v, now)
		})
	})
	if err == nil {
		s.cache.Invalidate(ctx, code)
	}
	if err == nil && expired {
		err = domain.NewDomainError(domain.ErrorCodeVoucherExpired, "voucher has expired").WithDetail("code", code)
	}
	observability.RecordVoucherOperation(op, domain.OutcomeLabel(err))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Cancel cancels an ACTIVE or PENDING voucher
func (s *Service) Cancel(ctx context.Context, code string) (*domain.Voucher, error) {
	v, err := s.mutate(ctx, "cancel", code, func(ctx context.Context, tx ports.DBTX, v *domain.Voucher, now time.Time) error {
		if err := v.Cancel(now); err != nil {
			return err
		}
		if err := s.vouchers.Update(ctx, tx, v); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, s.voucherEvent(v, domain.ActionVoucherCancelled, now))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Voucher cancelled", ports.Stringer("voucher_id", v.ID))
	return v, nil
}

// Gift transfers ownership of an ACTIVE, unexpired voucher
func (s *Service) Gift(ctx context.Context, code string, fromUser, toUser uuid.UUID, message string) (*domain.Voucher, error) {
	if fromUser == toUser {
		return nil, domain.Errorf(domain.ErrorCodeValidationFailed, "cannot gift a voucher to its owner")
	}
	v, err := s.mutate(ctx, "gift", code, func(ctx context.Context, tx ports.DBTX, v *domain.Voucher, now time.Time) error {
		if err := v.GiftTo(fromUser, toUser, message, now); err != nil {
			return err
		}
		if err := s.vouchers.Update(ctx, tx, v); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, s.voucherEvent(v, domain.ActionVoucherGifted, now))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Voucher gifted",
		ports.Stringer("voucher_id", v.ID),
		ports.Stringer("from", fromUser),
		ports.Stringer("to", toUser),
	)
	return v, nil
}

// ExpireDue marks vouchers past expiresAt as EXPIRED. Each voucher is
// expired in its own transaction; running it twice changes nothing.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpireBatch
	}
	due, err := s.vouchers.ListExpirable(ctx, nil, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expirable vouchers: %w", err)
	}

	expired := 0
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		changed := false
		err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			v, err := s.vouchers.GetByCodeForUpdate(ctx, tx, candidate.Code)
			if err != nil {
				return err
			}
			if v.IsTerminal() || !v.IsExpiredAt(now) {
				return nil
			}
			changed = true
			return s.expireTx(ctx, tx, v, now)
		})
		if err != nil {
			s.logger.Error("Failed to expire voucher",
				ports.Stringer("voucher_id", candidate.ID),
				ports.Err(err),
			)
			continue
		}
		if changed {
			expired++
			s.cache.Invalidate(ctx, candidate.Code)
		}
	}

	if expired > 0 {
		observability.RecordVoucherOperation("expire", "success")
		s.logger.Info("Expired due vouchers", ports.Int("count", expired))
	}
	return expired, nil
}

// GetByCode returns a voucher, read through the cache, with lazy expiry
// applied to the returned status
func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	v, err := s.cache.Get(ctx, code, func(ctx context.Context) (*domain.Voucher, error) {
		return s.vouchers.GetByCode(ctx, nil, code)
	})
	if err != nil {
		return nil, err
	}
	v.Status = v.EffectiveStatus(s.now())
	return v, nil
}
