package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fraction digits carried by every monetary field
const MoneyScale int32 = 2

// DefaultCurrency is used when a caller omits the currency
const DefaultCurrency = "USD"

// RoundMoney rounds an amount to MoneyScale fraction digits (half away from zero)
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}

// ValidateAmount checks that an amount is strictly positive and carries no
// more than MoneyScale fraction digits
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Errorf(ErrorCodeValidationAmountInvalid, "amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(RoundMoney(amount)) {
		return Errorf(ErrorCodeValidationAmountInvalid, "amount %s has more than %d fraction digits", amount.String(), MoneyScale)
	}
	return nil
}

// ValidateNonNegative checks that an amount is zero or positive with at most MoneyScale digits
func ValidateNonNegative(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return Errorf(ErrorCodeValidationAmountInvalid, "amount must not be negative, got %s", amount.String())
	}
	if !amount.Equal(RoundMoney(amount)) {
		return Errorf(ErrorCodeValidationAmountInvalid, "amount %s has more than %d fraction digits", amount.String(), MoneyScale)
	}
	return nil
}

// NormalizeCurrency upper-cases a currency and checks it is a 3-letter code.
// An empty currency resolves to DefaultCurrency.
func NormalizeCurrency(currency string) (string, error) {
	if currency == "" {
		return DefaultCurrency, nil
	}
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", Errorf(ErrorCodeValidationCurrencyInvalid, "currency %q must be a 3-letter code", currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", Errorf(ErrorCodeValidationCurrencyInvalid, "currency %q must be a 3-letter code", currency)
		}
	}
	return c, nil
}

// CheckCurrency returns CurrencyMismatch when got differs from want
func CheckCurrency(want, got string) error {
	if !strings.EqualFold(want, got) {
		return NewDomainError(ErrorCodeCurrencyMismatch, "currency mismatch").
			WithDetail("expected", want).
			WithDetail("actual", got)
	}
	return nil
}
