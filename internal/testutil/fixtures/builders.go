package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// TemplateBuilder provides fluent API for building voucher templates.
type TemplateBuilder struct {
	template *domain.VoucherTemplate
}

// NewTemplate creates a fixed USD 20.00 template valid for thirty days
// around now.
func NewTemplate(now time.Time) *TemplateBuilder {
	return &TemplateBuilder{
		template: &domain.VoucherTemplate{
			ID:                uuid.New(),
			MerchantID:        uuid.New(),
			Name:              "Test template",
			Kind:              domain.VoucherKindFixedAmount,
			ValueType:         domain.ValueTypeFixed,
			Value:             Dec("20.00"),
			Currency:          domain.DefaultCurrency,
			UsageLimitPerUser: 1,
			ValidFrom:         now.Add(-time.Hour),
			ValidUntil:        now.Add(30 * 24 * time.Hour),
			IsActive:          true,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
}

func (b *TemplateBuilder) WithMerchantID(id uuid.UUID) *TemplateBuilder {
	b.template.MerchantID = id
	return b
}

func (b *TemplateBuilder) WithValue(value string) *TemplateBuilder {
	b.template.Value = Dec(value)
	return b
}

func (b *TemplateBuilder) WithCurrency(currency string) *TemplateBuilder {
	b.template.Currency = currency
	return b
}

func (b *TemplateBuilder) WithUsageLimitPerUser(n int) *TemplateBuilder {
	b.template.UsageLimitPerUser = n
	return b
}

func (b *TemplateBuilder) WithTotalUsageLimit(n int) *TemplateBuilder {
	b.template.TotalUsageLimit = &n
	return b
}

func (b *TemplateBuilder) WithWindow(from, until time.Time) *TemplateBuilder {
	b.template.ValidFrom = from
	b.template.ValidUntil = until
	return b
}

// Partial allows partial redemption
func (b *TemplateBuilder) Partial() *TemplateBuilder {
	b.template.PartialRedemption = true
	return b
}

func (b *TemplateBuilder) Inactive() *TemplateBuilder {
	b.template.IsActive = false
	return b
}

func (b *TemplateBuilder) Build() *domain.VoucherTemplate {
	return b.template
}

// AccountBuilder provides fluent API for building payment accounts.
type AccountBuilder struct {
	account *domain.PaymentAccount
}

// NewAccount creates an active USD wallet with a zero balance.
func NewAccount(now time.Time) *AccountBuilder {
	return &AccountBuilder{
		account: &domain.PaymentAccount{
			ID:          uuid.New(),
			UserID:      uuid.New(),
			AccountType: domain.AccountTypeWallet,
			Balance:     decimal.Zero,
			Currency:    domain.DefaultCurrency,
			Status:      domain.AccountStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

func (b *AccountBuilder) WithUserID(id uuid.UUID) *AccountBuilder {
	b.account.UserID = id
	return b
}

func (b *AccountBuilder) WithBalance(balance string) *AccountBuilder {
	b.account.Balance = Dec(balance)
	return b
}

func (b *AccountBuilder) WithCurrency(currency string) *AccountBuilder {
	b.account.Currency = currency
	return b
}

func (b *AccountBuilder) Suspended() *AccountBuilder {
	b.account.Status = domain.AccountStatusSuspended
	return b
}

func (b *AccountBuilder) Build() *domain.PaymentAccount {
	return b.account
}

// TransactionBuilder provides fluent API for building transactions.
type TransactionBuilder struct {
	transaction *domain.Transaction
}

// NewTransaction creates a PENDING USD 10.00 purchase with no fee.
func NewTransaction(now time.Time) *TransactionBuilder {
	return &TransactionBuilder{
		transaction: &domain.Transaction{
			ID:              uuid.New(),
			UserID:          uuid.New(),
			Type:            domain.TransactionTypePurchase,
			Status:          domain.TransactionStatusPending,
			Amount:          Dec("10.00"),
			FeeAmount:       decimal.Zero,
			Currency:        domain.DefaultCurrency,
			TransactionDate: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

func (b *TransactionBuilder) WithMerchantID(id uuid.UUID) *TransactionBuilder {
	b.transaction.MerchantID = &id
	return b
}

func (b *TransactionBuilder) WithAmount(amount, fee string) *TransactionBuilder {
	b.transaction.Amount = Dec(amount)
	b.transaction.FeeAmount = Dec(fee)
	return b
}

func (b *TransactionBuilder) WithCurrency(currency string) *TransactionBuilder {
	b.transaction.Currency = currency
	return b
}

func (b *TransactionBuilder) WithExternalRef(ref string) *TransactionBuilder {
	b.transaction.ExternalRef = &ref
	return b
}

func (b *TransactionBuilder) WithStatus(status domain.TransactionStatus) *TransactionBuilder {
	b.transaction.Status = status
	return b
}

func (b *TransactionBuilder) WithDate(date time.Time) *TransactionBuilder {
	b.transaction.TransactionDate = date
	return b
}

func (b *TransactionBuilder) WithItems(items ...*domain.TransactionItem) *TransactionBuilder {
	b.transaction.Items = items
	return b
}

func (b *TransactionBuilder) Completed() *TransactionBuilder {
	b.transaction.Status = domain.TransactionStatusCompleted
	return b
}

func (b *TransactionBuilder) Build() *domain.Transaction {
	return b.transaction
}
