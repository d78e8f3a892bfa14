package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of value movement
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeGift       TransactionType = "GIFT"
	TransactionTypeRedemption TransactionType = "REDEMPTION"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypePayout     TransactionType = "PAYOUT"
	TransactionTypeTopup      TransactionType = "TOPUP"
)

// TransactionStatus represents the lifecycle state of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusRefunded  TransactionStatus = "REFUNDED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// ItemType represents what a transaction item references
type ItemType string

const (
	ItemTypeVoucher ItemType = "VOUCHER"
	ItemTypeGiftBox ItemType = "GIFT_BOX"
	ItemTypeProduct ItemType = "PRODUCT"
	ItemTypeService ItemType = "SERVICE"
)

// transactionTransitions is the closed transition table for transaction status
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusCompleted: {TransactionStatusRefunded},
}

// ParseTransactionStatus validates a status string from a gateway or caller
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	status := TransactionStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusRefunded, TransactionStatusCancelled:
		return status, nil
	}
	return "", Errorf(ErrorCodeValidationFailed, "unknown transaction status %q", s)
}

// Transaction is the append-style record of an attempted or completed value movement.
// Voucher and account identifiers are weak references.
type Transaction struct {
	TransactionDate time.Time          `json:"transaction_date"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	DeletedAt       *time.Time         `json:"deleted_at,omitempty"`
	MerchantID      *uuid.UUID         `json:"merchant_id,omitempty"`
	ExternalRef     *string            `json:"external_ref,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	FeeAmount       decimal.Decimal    `json:"fee_amount"`
	Currency        string             `json:"currency"`
	PaymentMethod   string             `json:"payment_method"`
	Notes           string             `json:"notes,omitempty"`
	Type            TransactionType    `json:"type"`
	Status          TransactionStatus  `json:"status"`
	Items           []*TransactionItem `json:"items,omitempty"`
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
}

// IsTerminal returns true if no further transition is possible
func (t *Transaction) IsTerminal() bool {
	_, ok := transactionTransitions[t.Status]
	return !ok
}

// CanTransitionTo checks the transaction transition table
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[t.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo applies a status change, rejecting anything outside the table
func (t *Transaction) TransitionTo(next TransactionStatus, now time.Time) error {
	if !t.CanTransitionTo(next) {
		return invalidTransition("transaction", t.Status, next).WithDetail("transaction_id", t.ID.String())
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}

// GetExternalRef safely retrieves the external reference
func (t *Transaction) GetExternalRef() string {
	if t.ExternalRef != nil {
		return *t.ExternalRef
	}
	return ""
}

// Validate checks a new transaction before it is persisted
func (t *Transaction) Validate() error {
	switch t.Type {
	case TransactionTypePurchase, TransactionTypeGift, TransactionTypeRedemption,
		TransactionTypeRefund, TransactionTypePayout, TransactionTypeTopup:
	default:
		return Errorf(ErrorCodeValidationFailed, "unknown transaction type %q", t.Type)
	}
	if t.UserID == uuid.Nil {
		return Errorf(ErrorCodeValidationMissingField, "transaction user_id is required")
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := ValidateNonNegative(t.FeeAmount); err != nil {
		return err
	}
	if t.FeeAmount.GreaterThan(t.Amount) {
		return Errorf(ErrorCodeValidationAmountInvalid, "fee %s exceeds amount %s", t.FeeAmount.String(), t.Amount.String())
	}
	if t.ExternalRef != nil && *t.ExternalRef == "" {
		return Errorf(ErrorCodeValidationFailed, "external_ref must not be empty when set")
	}
	return nil
}

// TransactionItem is a line of a transaction, created atomically with its parent
type TransactionItem struct {
	CreatedAt      time.Time       `json:"created_at"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	ItemType       ItemType        `json:"item_type"`
	Quantity       int             `json:"quantity"`
	ID             uuid.UUID       `json:"id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	ItemID         uuid.UUID       `json:"item_id"`
}

// NewTransactionItem builds an item with total = unitPrice × quantity − discount
func NewTransactionItem(itemType ItemType, itemID uuid.UUID, quantity int, unitPrice, discount decimal.Decimal) (*TransactionItem, error) {
	switch itemType {
	case ItemTypeVoucher, ItemTypeGiftBox, ItemTypeProduct, ItemTypeService:
	default:
		return nil, Errorf(ErrorCodeValidationFailed, "unknown item type %q", itemType)
	}
	if quantity < 1 {
		return nil, Errorf(ErrorCodeValidationFailed, "item quantity must be at least 1, got %d", quantity)
	}
	if err := ValidateNonNegative(unitPrice); err != nil {
		return nil, err
	}
	if err := ValidateNonNegative(discount); err != nil {
		return nil, err
	}
	total := RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount))
	if total.IsNegative() {
		return nil, Errorf(ErrorCodeValidationAmountInvalid, "item discount %s exceeds line price", discount.String())
	}
	return &TransactionItem{
		ID:             uuid.New(),
		ItemType:       itemType,
		ItemID:         itemID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		DiscountAmount: discount,
		TotalPrice:     total,
	}, nil
}
