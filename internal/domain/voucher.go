package domain

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherKind describes the benefit a template grants
type VoucherKind string

const (
	VoucherKindDiscount    VoucherKind = "DISCOUNT"
	VoucherKindFixedAmount VoucherKind = "FIXED_AMOUNT"
	VoucherKindProduct     VoucherKind = "PRODUCT"
	VoucherKindService     VoucherKind = "SERVICE"
)

// ValueType says how a template's value is interpreted
type ValueType string

const (
	ValueTypePercentage ValueType = "PERCENTAGE"
	ValueTypeFixed      ValueType = "FIXED"
)

// VoucherStatus represents the lifecycle state of an issued voucher
type VoucherStatus string

const (
	VoucherStatusPending   VoucherStatus = "PENDING"   // Awaiting payment capture
	VoucherStatusActive    VoucherStatus = "ACTIVE"    // Redeemable
	VoucherStatusRedeemed  VoucherStatus = "REDEEMED"  // Fully consumed
	VoucherStatusExpired   VoucherStatus = "EXPIRED"   // Past expiresAt
	VoucherStatusCancelled VoucherStatus = "CANCELLED" // Withdrawn before use
)

const (
	VoucherCodeMinLength = 8
	VoucherCodeMaxLength = 50

	// GeneratedCodeLength is the length of codes produced by GenerateVoucherCode
	GeneratedCodeLength = 12
)

// voucherTransitions is the closed transition table for voucher status
var voucherTransitions = map[VoucherStatus][]VoucherStatus{
	VoucherStatusPending: {VoucherStatusActive, VoucherStatusCancelled, VoucherStatusExpired},
	VoucherStatusActive:  {VoucherStatusRedeemed, VoucherStatusExpired, VoucherStatusCancelled},
}

// VoucherTemplate is a merchant-defined blueprint for issued vouchers
type VoucherTemplate struct {
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	DeletedAt         *time.Time       `json:"deleted_at,omitempty"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	TotalUsageLimit   *int             `json:"total_usage_limit,omitempty"`
	Value             decimal.Decimal  `json:"value"`
	MinPurchaseAmount decimal.Decimal  `json:"min_purchase_amount"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Kind              VoucherKind      `json:"kind"`
	ValueType         ValueType        `json:"value_type"`
	Currency          string           `json:"currency"`
	UsageLimitPerUser int              `json:"usage_limit_per_user"`
	IssuedCount       int              `json:"issued_count"`
	ID                uuid.UUID        `json:"id"`
	MerchantID        uuid.UUID        `json:"merchant_id"`
	IsActive          bool             `json:"is_active"`
	PartialRedemption bool             `json:"partial_redemption"`
}

// Validate checks the template's own invariants
func (t *VoucherTemplate) Validate() error {
	if t.Name == "" {
		return Errorf(ErrorCodeValidationMissingField, "template name is required")
	}
	if t.MerchantID == uuid.Nil {
		return Errorf(ErrorCodeValidationMissingField, "template merchant_id is required")
	}
	if err := ValidateAmount(t.Value); err != nil {
		return err
	}
	switch t.ValueType {
	case ValueTypeFixed:
	case ValueTypePercentage:
		if t.Value.GreaterThan(decimal.NewFromInt(100)) {
			return Errorf(ErrorCodeValidationAmountInvalid, "percentage value %s exceeds 100", t.Value.String())
		}
	default:
		return Errorf(ErrorCodeValidationFailed, "unknown value type %q", t.ValueType)
	}
	switch t.Kind {
	case VoucherKindDiscount, VoucherKindFixedAmount, VoucherKindProduct, VoucherKindService:
	default:
		return Errorf(ErrorCodeValidationFailed, "unknown voucher kind %q", t.Kind)
	}
	if err := ValidateNonNegative(t.MinPurchaseAmount); err != nil {
		return err
	}
	if t.MaxDiscountAmount != nil {
		if err := ValidateAmount(*t.MaxDiscountAmount); err != nil {
			return err
		}
	}
	if !t.ValidFrom.Before(t.ValidUntil) {
		return Errorf(ErrorCodeValidationFailed, "valid_from must be before valid_until")
	}
	if t.UsageLimitPerUser < 1 {
		return Errorf(ErrorCodeValidationFailed, "usage_limit_per_user must be at least 1")
	}
	if t.TotalUsageLimit != nil && *t.TotalUsageLimit < 1 {
		return Errorf(ErrorCodeValidationFailed, "total_usage_limit must be at least 1")
	}
	return nil
}

// IsAvailable reports whether vouchers can be issued from the template at now.
// The validity window is half-open: [ValidFrom, ValidUntil).
func (t *VoucherTemplate) IsAvailable(now time.Time) bool {
	return t.IsActive &&
		t.DeletedAt == nil &&
		!now.Before(t.ValidFrom) &&
		now.Before(t.ValidUntil)
}

// TotalLimitReached reports whether another issuance would exceed TotalUsageLimit
func (t *VoucherTemplate) TotalLimitReached() bool {
	return t.TotalUsageLimit != nil && t.IssuedCount >= *t.TotalUsageLimit
}

// InitialValue is the redeemable value a fresh voucher carries. Percentage
// templates are capped by MaxDiscountAmount when one is set.
func (t *VoucherTemplate) InitialValue() decimal.Decimal {
	if t.ValueType == ValueTypePercentage && t.MaxDiscountAmount != nil {
		return RoundMoney(*t.MaxDiscountAmount)
	}
	return RoundMoney(t.Value)
}

// Deactivate withdraws the template from further issuance
func (t *VoucherTemplate) Deactivate(now time.Time) {
	t.IsActive = false
	t.UpdatedAt = now
}

// Voucher is an issued, redeemable unit of value
type Voucher struct {
	IssuedAt     time.Time       `json:"issued_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	RedeemedAt   *time.Time      `json:"redeemed_at,omitempty"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	OwnerUserID  *uuid.UUID      `json:"owner_user_id,omitempty"`
	SenderUserID *uuid.UUID      `json:"sender_user_id,omitempty"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Code         string          `json:"code"`
	GiftMessage  string          `json:"gift_message,omitempty"`
	Status       VoucherStatus   `json:"status"`
	Version      int64           `json:"version"`
	ID           uuid.UUID       `json:"id"`
	TemplateID   uuid.UUID       `json:"template_id"`
	IsGift       bool            `json:"is_gift"`
}

// IsExpiredAt reports whether the voucher is past its expiry at now (expiresAt <= now)
func (v *Voucher) IsExpiredAt(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// IsTerminal returns true once the voucher can no longer change state
func (v *Voucher) IsTerminal() bool {
	_, ok := voucherTransitions[v.Status]
	return !ok
}

// EffectiveStatus is the status a reader should observe at now, applying lazy expiry
func (v *Voucher) EffectiveStatus(now time.Time) VoucherStatus {
	if !v.IsTerminal() && v.IsExpiredAt(now) {
		return VoucherStatusExpired
	}
	return v.Status
}

// CanTransitionTo checks the voucher transition table
func (v *Voucher) CanTransitionTo(next VoucherStatus) bool {
	for _, allowed := range voucherTransitions[v.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (v *Voucher) transition(next VoucherStatus, now time.Time) error {
	if !v.CanTransitionTo(next) {
		return invalidTransition("voucher", v.Status, next)
	}
	v.Status = next
	v.UpdatedAt = now
	return nil
}

// Activate moves a PENDING voucher to ACTIVE once payment is captured
func (v *Voucher) Activate(now time.Time) error {
	return v.transition(VoucherStatusActive, now)
}

// MarkExpired records lazy or scheduled expiry
func (v *Voucher) MarkExpired(now time.Time) error {
	return v.transition(VoucherStatusExpired, now)
}

// Cancel is permitted only while ACTIVE or PENDING
func (v *Voucher) Cancel(now time.Time) error {
	return v.transition(VoucherStatusCancelled, now)
}

// CheckRedeemable returns the typed failure that blocks redemption at now, if any.
// Expiry wins over any stored status except REDEEMED and CANCELLED.
func (v *Voucher) CheckRedeemable(now time.Time) error {
	switch v.Status {
	case VoucherStatusRedeemed:
		return NewDomainError(ErrorCodeVoucherAlreadyRedeemed, "voucher already redeemed").WithDetail("code", v.Code)
	case VoucherStatusCancelled:
		return NewDomainError(ErrorCodeVoucherCancelled, "voucher is cancelled").WithDetail("code", v.Code)
	case VoucherStatusExpired:
		return NewDomainError(ErrorCodeVoucherExpired, "voucher has expired").WithDetail("code", v.Code)
	}
	if v.IsExpiredAt(now) {
		return NewDomainError(ErrorCodeVoucherExpired, "voucher has expired").WithDetail("code", v.Code)
	}
	if v.Status == VoucherStatusPending {
		return invalidTransition("voucher", v.Status, VoucherStatusRedeemed)
	}
	return nil
}

// Redeem consumes value from an ACTIVE voucher and returns the amount consumed.
//
// Partial vouchers are decremented by requested, which must be positive and no
// more than CurrentValue; they become REDEEMED only when the value reaches zero.
// Other vouchers are binary: the whole CurrentValue is consumed at once and a
// requested amount, when given, must not exceed it.
func (v *Voucher) Redeem(requested *decimal.Decimal, partial bool, now time.Time) (decimal.Decimal, error) {
	if err := v.CheckRedeemable(now); err != nil {
		return decimal.Zero, err
	}

	consumed := v.CurrentValue
	if requested != nil {
		if err := ValidateAmount(*requested); err != nil {
			return decimal.Zero, err
		}
		if requested.GreaterThan(v.CurrentValue) {
			return decimal.Zero, NewDomainError(ErrorCodeVoucherInsufficientValue, "requested amount exceeds voucher value").
				WithDetail("requested", requested.String()).
				WithDetail("available", v.CurrentValue.String())
		}
		if partial {
			consumed = *requested
		}
	} else if partial {
		return decimal.Zero, Errorf(ErrorCodeValidationMissingField, "amount is required for partial redemption")
	}

	v.CurrentValue = RoundMoney(v.CurrentValue.Sub(consumed))
	v.UpdatedAt = now
	if v.CurrentValue.IsZero() {
		if err := v.transition(VoucherStatusRedeemed, now); err != nil {
			return decimal.Zero, err
		}
		redeemedAt := now
		v.RedeemedAt = &redeemedAt
	}
	return consumed, nil
}

// GiftTo hands an ACTIVE voucher from one user to another
func (v *Voucher) GiftTo(from, to uuid.UUID, message string, now time.Time) error {
	if err := v.CheckRedeemable(now); err != nil {
		return err
	}
	if v.OwnerUserID != nil && *v.OwnerUserID != from {
		return NewDomainError(ErrorCodeVoucherNotOwned, "voucher is not owned by caller").WithDetail("code", v.Code)
	}
	sender := from
	owner := to
	v.SenderUserID = &sender
	v.OwnerUserID = &owner
	v.IsGift = true
	v.GiftMessage = message
	v.UpdatedAt = now
	return nil
}

// Tombstone logically deletes the voucher; reads exclude tombstoned rows
func (v *Voucher) Tombstone(now time.Time) {
	deletedAt := now
	v.DeletedAt = &deletedAt
	v.UpdatedAt = now
}

// NewVoucher builds an ACTIVE voucher from a template
func NewVoucher(tpl *VoucherTemplate, code string, owner, sender *uuid.UUID, giftMessage string, now time.Time) *Voucher {
	return &Voucher{
		ID:           uuid.New(),
		TemplateID:   tpl.ID,
		Code:         code,
		OwnerUserID:  owner,
		SenderUserID: sender,
		IsGift:       sender != nil,
		GiftMessage:  giftMessage,
		CurrentValue: tpl.InitialValue(),
		Status:       VoucherStatusActive,
		IssuedAt:     now,
		ExpiresAt:    tpl.ValidUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidateVoucherCode checks code length bounds
func ValidateVoucherCode(code string) error {
	if len(code) < VoucherCodeMinLength || len(code) > VoucherCodeMaxLength {
		return Errorf(ErrorCodeValidationFailed, "voucher code must be %d to %d characters", VoucherCodeMinLength, VoucherCodeMaxLength)
	}
	return nil
}

// codeAlphabet omits characters easily confused when read aloud (0/O, 1/I)
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateVoucherCode returns a random code of GeneratedCodeLength characters
func GenerateVoucherCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, GeneratedCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", WrapError(ErrorCodeInternalError, "generate voucher code", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
