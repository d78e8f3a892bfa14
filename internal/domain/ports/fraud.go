package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedemptionScreening is the input handed to a RedemptionScreener
type RedemptionScreening struct {
	Amount     decimal.Decimal
	Code       string
	Currency   string
	UserID     uuid.UUID
	MerchantID uuid.UUID
}

// ScreeningResult is a screener's verdict
type ScreeningResult struct {
	Reason  string
	Allowed bool
}

// RedemptionScreener is evaluated before any redemption mutates state
type RedemptionScreener interface {
	Screen(ctx context.Context, req RedemptionScreening) (*ScreeningResult, error)
}
