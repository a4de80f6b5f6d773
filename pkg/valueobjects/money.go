// pkg/valueobjects/money.go
package valueobjects

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ticketdesk/orderbot/errors"
	"github.com/shopspring/decimal"
)

// Currency represents a valid ISO 4217 currency code
type Currency string

// Supported currencies
const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CAD Currency = "CAD"
)

// validCurrencies maintains a set of supported currencies
var validCurrencies = map[Currency]bool{
	USD: true,
	EUR: true,
	GBP: true,
	CAD: true,
}

var currencySymbols = map[string]Currency{
	"$": USD,
	"€": EUR,
	"£": GBP,
}

var amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// Money represents a monetary value with a specific currency
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money instance with validation
func NewMoney(amount decimal.Decimal, currency Currency) (*Money, error) {
	if !isValidCurrency(currency) {
		return nil, errors.ValidationFailed(
			"invalid currency",
			fmt.Sprintf("currency %s is not supported", currency),
		)
	}

	if amount.LessThan(decimal.Zero) {
		return nil, errors.ValidationFailed(
			"invalid amount",
			"amount cannot be negative",
		)
	}

	return &Money{
		amount:   amount.Round(2),
		currency: currency,
	}, nil
}

// ParseMoney reads a loosely formatted price such as "$120", "USD 1,299.50"
// or "120.00 total". The first number found is the amount; the currency comes
// from a symbol or code and defaults to USD.
func ParseMoney(raw string) (*Money, error) {
	s := strings.TrimSpace(raw)
	match := amountPattern.FindString(s)
	if match == "" {
		return nil, errors.ValidationFailed("invalid amount format", fmt.Sprintf("no amount in %q", raw))
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return nil, errors.ValidationFailed("invalid amount format", err.Error())
	}

	return NewMoney(amount, detectCurrency(s))
}

func detectCurrency(s string) Currency {
	upper := strings.ToUpper(s)
	for code := range validCurrencies {
		if strings.Contains(upper, string(code)) {
			return code
		}
	}
	for symbol, code := range currencySymbols {
		if strings.Contains(s, symbol) {
			return code
		}
	}
	return USD
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// PerUnit divides the amount across n units, rounded half-up to cents.
func (m Money) PerUnit(n int) (*Money, error) {
	if n <= 0 {
		return nil, errors.ValidationFailed(
			"invalid split",
			"number of units must be positive",
		)
	}

	return &Money{
		amount:   m.amount.Div(decimal.NewFromInt(int64(n))).Round(2),
		currency: m.currency,
	}, nil
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Equals checks if two monetary values are equal
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Display renders the amount for a sheet cell, "$30.00" for USD and
// "30.00 EUR" otherwise.
func (m Money) Display() string {
	if m.currency == USD {
		return "$" + m.amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// String returns a string representation of the money value
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// private helpers
func isValidCurrency(currency Currency) bool {
	return validCurrencies[currency]
}
