package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateTemplateRequest contains parameters for defining a voucher template
type CreateTemplateRequest struct {
	ValidFrom         time.Time
	ValidUntil        time.Time
	MaxDiscountAmount *decimal.Decimal
	TotalUsageLimit   *int // nil = unlimited
	Value             decimal.Decimal
	MinPurchaseAmount decimal.Decimal
	Name              string
	Description       string
	Kind              domain.VoucherKind
	ValueType         domain.ValueType
	Currency          string
	UsageLimitPerUser int // 0 = default of 1
	MerchantID        uuid.UUID
	PartialRedemption bool
}

// IssueRequest contains parameters for issuing a voucher from a template
type IssueRequest struct {
	OwnerID     *uuid.UUID
	SenderID    *uuid.UUID
	GiftMessage string
	TemplateID  uuid.UUID
}

// RedeemRequest contains parameters for redeeming a voucher
type RedeemRequest struct {
	Amount         *decimal.Decimal // nil = full remaining value
	AccountID      *uuid.UUID       // account credited with the redeemed value
	IdempotencyKey string           // optional; replays return the original result
	Code           string
	UserID         uuid.UUID
}

// RedemptionResult describes a completed redemption
type RedemptionResult struct {
	Redemption *domain.Redemption
	Voucher    *domain.Voucher
	Consumed   decimal.Decimal
	Remaining  decimal.Decimal
	Replayed   bool
}

// ResumeReport summarizes a forward-recovery sweep
type ResumeReport struct {
	Scanned   int
	Completed int
	Failed    int
}

// VoucherService manages templates, issued vouchers and redemption sagas
type VoucherService interface {
	// CreateTemplate validates and stores a template
	CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*domain.VoucherTemplate, error)

	// DeactivateTemplate withdraws a template from further issuance
	DeactivateTemplate(ctx context.Context, templateID uuid.UUID) (*domain.VoucherTemplate, error)

	// Issue creates an ACTIVE voucher with a unique code
	Issue(ctx context.Context, req IssueRequest) (*domain.Voucher, error)

	// Redeem consumes voucher value and drives the redemption saga to completion
	Redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error)

	// ResumeRedemption completes the outstanding steps of one saga
	ResumeRedemption(ctx context.Context, redemptionID uuid.UUID) (*RedemptionResult, error)

	// ResumePendingRedemptions completes sagas left PENDING since before olderThan
	ResumePendingRedemptions(ctx context.Context, olderThan time.Time, limit int) (*ResumeReport, error)

	// Cancel cancels an ACTIVE or PENDING voucher
	Cancel(ctx context.Context, code string) (*domain.Voucher, error)

	// Gift transfers ownership of an ACTIVE voucher
	Gift(ctx context.Context, code string, fromUser, toUser uuid.UUID, message string) (*domain.Voucher, error)

	// ExpireDue marks vouchers past expiresAt as EXPIRED and returns how many changed
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)

	// GetByCode returns a voucher with lazy expiry applied to its status
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
}
