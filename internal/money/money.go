// Package money defines the monetary amount and currency types shared by the
// pricing engine. All arithmetic is decimal; binary floating point is never
// used so totals stay reproducible.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rounding"
)

// ErrUnknownCurrency is returned when a cart references a currency code the
// engine has no definition for.
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency describes how amounts of a currency are rounded and displayed.
type Currency struct {
	Code     string
	Decimals int32
	Policy   rounding.Policy
	Midpoint rounding.Midpoint
}

// Amount is a decimal value tagged with its currency.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// New builds an Amount in the given currency.
func New(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency.Code}
}

// Round returns the value rounded according to the currency's policy.
func (c Currency) Round(value decimal.Decimal) (decimal.Decimal, error) {
	return rounding.Round(value, c.Decimals, c.Policy, c.Midpoint)
}

// RoundAmount rounds and wraps a raw value as an Amount of this currency.
func (c Currency) RoundAmount(value decimal.Decimal) (Amount, error) {
	rounded, err := c.Round(value)
	if err != nil {
		return Amount{}, fmt.Errorf("round %s: %w", c.Code, err)
	}
	return New(rounded, c), nil
}

// Validate checks the currency definition is usable.
func (c Currency) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: empty code", ErrUnknownCurrency)
	}
	if c.Decimals < 0 {
		return fmt.Errorf("currency %s: negative decimal places", c.Code)
	}
	if _, err := rounding.Round(decimal.Zero, c.Decimals, c.Policy, c.Midpoint); err != nil {
		return fmt.Errorf("currency %s: %w", c.Code, err)
	}
	return nil
}
