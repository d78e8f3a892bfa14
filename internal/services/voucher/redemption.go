package voucher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/shopspring/decimal"
)

const (
	defaultResumeBatch = 100

	redemptionPaymentMethod = "voucher"
)

// Redeem consumes voucher value and drives the redemption saga:
//
//  1. voucher step: value consumed and the redemption log written, one commit
//  2. ledger step: net value credited to the account, keyed by the redemption
//  3. record step: COMPLETED REDEMPTION transaction recorded, keyed by the redemption
//
// Success is reported only after step 3 commits. A failure after step 1
// leaves the redemption PENDING; replaying the idempotency key or the resume
// sweep completes it.
func (s *Service) Redeem(ctx context.Context, req svcports.RedeemRequest) (*svcports.RedemptionResult, error) {
	ctx, cancel := s.timeouts.RedemptionContext(ctx)
	defer cancel()
	start := time.Now()

	result, err := s.redeem(ctx, req)

	outcome := domain.OutcomeLabel(err)
	observability.RecordVoucherOperation("redeem", outcome)
	observability.RecordRedemptionSaga(outcome, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Redemption failed",
			ports.String("code", req.Code),
			ports.Stringer("user_id", req.UserID),
			ports.Err(err),
		)
		return nil, err
	}
	if !result.Replayed {
		observability.RecordVoucherRedeemed(result.Consumed, result.Redemption.Currency)
	}
	return result, nil
}

func (s *Service) redeem(ctx context.Context, req svcports.RedeemRequest) (*svcports.RedemptionResult, error) {
	if req.Code == "" {
		return nil, domain.Errorf(domain.ErrorCodeValidationMissingField, "voucher code is required")
	}
	if req.UserID == uuid.Nil {
		return nil, domain.Errorf(domain.ErrorCodeValidationMissingField, "user_id is required")
	}

	if req.IdempotencyKey != "" {
		existing, err := s.redemptions.GetByIdempotencyKey(ctx, nil, req.IdempotencyKey)
		if err == nil {
			return s.replay(ctx, existing, req)
		}
		if !domain.IsNotFoundError(err) {
			return nil, fmt.Errorf("lookup redemption: %w", err)
		}
	}

	if err := s.precheck(ctx, req); err != nil {
		return nil, err
	}

	red, err := s.voucherStep(ctx, req)
	if domain.IsDomainError(err, domain.ErrorCodeAlreadyExists) && req.IdempotencyKey != "" {
		// Lost the race for the idempotency key
		existing, lookupErr := s.redemptions.GetByIdempotencyKey(ctx, nil, req.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return s.replay(ctx, existing, req)
	}
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, red, false)
}

// replay returns the outcome of an earlier request with the same key,
// completing its saga first when it was interrupted
func (s *Service) replay(ctx context.Context, red *domain.Redemption, req svcports.RedeemRequest) (*svcports.RedemptionResult, error) {
	if red.Code != req.Code || red.UserID != req.UserID {
		return nil, domain.NewDomainError(domain.ErrorCodeIdempotencyConflict, "idempotency key was used for a different redemption").
			WithDetail("idempotency_key", req.IdempotencyKey)
	}
	s.logger.Info("Returning existing redemption for idempotency key",
		ports.String("idempotency_key", req.IdempotencyKey),
		ports.Stringer("redemption_id", red.ID),
	)
	return s.complete(ctx, red, true)
}

// precheck validates the target account and runs the screening hook before
// anything is mutated
func (s *Service) precheck(ctx context.Context, req svcports.RedeemRequest) error {
	v, err := s.vouchers.GetByCode(ctx, nil, req.Code)
	if err != nil {
		return err
	}
	tpl, err := s.templates.GetByID(ctx, nil, v.TemplateID)
	if err != nil {
		return err
	}

	if req.AccountID != nil {
		acct, err := s.ledger.GetAccount(ctx, *req.AccountID)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return domain.NewDomainError(domain.ErrorCodeAccountInactive, "payment account is not active").
				WithDetail("account_id", acct.ID.String())
		}
		if err := domain.CheckCurrency(acct.Currency, tpl.Currency); err != nil {
			return err
		}
	}

	if s.screener == nil {
		return nil
	}
	amount := v.CurrentValue
	if req.Amount != nil {
		amount = *req.Amount
	}
	verdict, err := s.screener.Screen(ctx, ports.RedemptionScreening{
		Amount:     amount,
		Code:       v.Code,
		Currency:   tpl.Currency,
		UserID:     req.UserID,
		MerchantID: tpl.MerchantID,
	})
	if err != nil {
		return fmt.Errorf("screen redemption: %w", err)
	}
	if !verdict.Allowed {
		return domain.NewDomainError(domain.ErrorCodeRedemptionRejected, "redemption rejected by screening").
			WithDetail("reason", verdict.Reason)
	}
	return nil
}

// voucherStep consumes value and writes the redemption log in one commit
func (s *Service) voucherStep(ctx context.Context, req svcports.RedeemRequest) (*domain.Redemption, error) {
	var red *domain.Redemption
	_, err := s.mutate(ctx, "redeem_step", req.Code, func(ctx context.Context, tx ports.DBTX, v *domain.Voucher, now time.Time) error {
		if v.OwnerUserID != nil && *v.OwnerUserID != req.UserID {
			return domain.NewDomainError(domain.ErrorCodeVoucherNotOwned, "voucher is not owned by caller").
				WithDetail("code", v.Code)
		}
		tpl, err := s.templates.GetByID(ctx, tx, v.TemplateID)
		if err != nil {
			return err
		}

		consumed, err := v.Redeem(req.Amount, tpl.PartialRedemption, now)
		if err != nil {
			return err
		}
		if err := s.vouchers.Update(ctx, tx, v); err != nil {
			return err
		}

		red = &domain.Redemption{
			ID:         uuid.New(),
			VoucherID:  v.ID,
			Code:       v.Code,
			AccountID:  req.AccountID,
			UserID:     req.UserID,
			MerchantID: tpl.MerchantID,
			Amount:     consumed,
			Fee:        s.fee(consumed),
			Currency:   tpl.Currency,
			Status:     domain.RedemptionStatusPending,
			Step:       domain.RedemptionStepVoucherApplied,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			red.IdempotencyKey = &key
		}
		return s.redemptions.Create(ctx, tx, red)
	})
	if err != nil {
		return nil, err
	}
	return red, nil
}

func (s *Service) fee(consumed decimal.Decimal) decimal.Decimal {
	if s.feeRate.IsZero() {
		return decimal.Zero
	}
	fee := domain.RoundMoney(consumed.Mul(s.feeRate))
	if fee.GreaterThan(consumed) {
		return consumed
	}
	return fee
}

// complete runs the outstanding saga steps. Each step is idempotent by the
// redemption id, so completing twice has the effect of completing once.
func (s *Service) complete(ctx context.Context, red *domain.Redemption, replayed bool) (*svcports.RedemptionResult, error) {
	if red.NeedsLedgerStep() {
		if err := s.ledgerStep(ctx, red); err != nil {
			return nil, fmt.Errorf("redemption %s ledger step: %w", red.ID, err)
		}
	}
	if !red.IsCompleted() {
		if err := s.recordStep(ctx, red); err != nil {
			return nil, fmt.Errorf("redemption %s record step: %w", red.ID, err)
		}
	}

	v, err := s.vouchers.GetByID(ctx, nil, red.VoucherID)
	if err != nil {
		return nil, err
	}
	return &svcports.RedemptionResult{
		Redemption: red,
		Voucher:    v,
		Consumed:   red.Amount,
		Remaining:  v.CurrentValue,
		Replayed:   replayed,
	}, nil
}

func (s *Service) ledgerStep(ctx context.Context, red *domain.Redemption) error {
	if net := red.NetAmount(); net.IsPositive() {
		if _, err := s.ledger.Credit(ctx, *red.AccountID, net, red.Currency, red.LedgerKey()); err != nil {
			return err
		}
	}

	return resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			locked, err := s.redemptions.GetByIDForUpdate(ctx, tx, red.ID)
			if err != nil {
				return err
			}
			locked.MarkLedgerApplied(s.now())
			if err := s.redemptions.Update(ctx, tx, locked); err != nil {
				return err
			}
			*red = *locked
			return nil
		})
	})
}

func (s *Service) recordStep(ctx context.Context, red *domain.Redemption) error {
	return resilience.Retry(ctx, s.retry, domain.IsRetryable, func(ctx context.Context) error {
		return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			locked, err := s.redemptions.GetByIDForUpdate(ctx, tx, red.ID)
			if err != nil {
				return err
			}
			if locked.IsCompleted() {
				*red = *locked
				return nil
			}

			externalRef := locked.ExternalRef()
			merchantID := locked.MerchantID
			txn, err := s.txns.RecordTx(ctx, tx, svcports.RecordRequest{
				Type:          domain.TransactionTypeRedemption,
				UserID:        locked.UserID,
				MerchantID:    &merchantID,
				ExternalRef:   &externalRef,
				Amount:        locked.Amount,
				Fee:           locked.Fee,
				Currency:      locked.Currency,
				PaymentMethod: redemptionPaymentMethod,
				Items: []svcports.ItemRequest{{
					ItemType:  domain.ItemTypeVoucher,
					ItemID:    locked.VoucherID,
					Quantity:  1,
					UnitPrice: locked.Amount,
				}},
			})
			if err != nil {
				return err
			}
			if txn.Status == domain.TransactionStatusPending {
				if txn, err = s.txns.TransitionTx(ctx, tx, txn.ID, domain.TransactionStatusCompleted); err != nil {
					return err
				}
			}

			now := s.now()
			locked.Complete(txn.ID, now)
			if err := s.redemptions.Update(ctx, tx, locked); err != nil {
				return err
			}
			if err := s.events.Emit(ctx, tx,
				domain.NewDomainEvent(domain.EntityTypeVoucher, locked.VoucherID, domain.ActionVoucherRedeemed, now),
			); err != nil {
				return err
			}
			*red = *locked
			return nil
		})
	})
}

// ResumeRedemption completes the outstanding steps of one saga
func (s *Service) ResumeRedemption(ctx context.Context, redemptionID uuid.UUID) (*svcports.RedemptionResult, error) {
	ctx, cancel := s.timeouts.RedemptionContext(ctx)
	defer cancel()

	red, err := s.redemptions.GetByID(ctx, nil, redemptionID)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, red, red.IsCompleted())
}

// ResumePendingRedemptions completes sagas left PENDING since before
// olderThan. A saga that fails again stays PENDING for the next sweep.
func (s *Service) ResumePendingRedemptions(ctx context.Context, olderThan time.Time, limit int) (*svcports.ResumeReport, error) {
	if limit <= 0 {
		limit = defaultResumeBatch
	}
	pending, err := s.redemptions.ListPending(ctx, nil, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}

	report := &svcports.ResumeReport{Scanned: len(pending)}
	for _, red := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.ResumeRedemption(ctx, red.ID); err != nil {
			report.Failed++
			observability.RecordRedemptionSaga("resume_failed", 0)
			s.logger.Error("Failed to resume redemption",
				ports.Stringer("redemption_id", red.ID),
				ports.String("step", string(red.Step)),
				ports.Err(err),
			)
			continue
		}
		report.Completed++
		observability.RecordRedemptionSaga("resumed", 0)
	}

	if report.Scanned > 0 {
		s.logger.Info("Redemption resume sweep finished",
			ports.Int("scanned", report.Scanned),
			ports.Int("completed", report.Completed),
			ports.Int("failed", report.Failed),
		)
	}
	return report, nil
}
