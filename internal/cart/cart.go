// Package cart defines the immutable cart snapshot handed to the pricing
// engine. The snapshot is owned by the caller; the engine never mutates it.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when a cart snapshot fails validation. The
// engine rejects the cart before any pipeline stage runs.
var ErrInvalidInput = errors.New("invalid input")

// Line is one product position in the cart.
type Line struct {
	ProductID uuid.UUID
	UnitPrice decimal.Decimal
	Qty       int
	// ShipEnabled marks lines that require shipping at all.
	ShipEnabled bool
	// FreeShipping grants free shipping for the order when set on a
	// ship-enabled line.
	FreeShipping             bool
	AdditionalShippingCharge decimal.Decimal
	TaxCategory              string
}

// Total returns unit price times quantity, unrounded.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Cart is the snapshot the engine prices. Collaborator data that depends on
// the customer (tax exemption, group membership, location) is resolved by the
// caller and attached here.
type Cart struct {
	Lines            []Line
	Currency         string
	CustomerLocation string
	TaxExempt        bool
	GroupIDs         []uuid.UUID
	// FreeShipping carries a cart-level free-shipping rule resolved upstream.
	FreeShipping bool
	// RedeemPoints is the loyalty-point redemption the customer requested;
	// zero means no redemption.
	RedeemPoints int64
}

// Validate rejects malformed snapshots: empty carts, non-positive quantities,
// negative prices, missing or mismatched currency.
func (c Cart) Validate(expectedCurrency string) error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("%w: cart has no lines", ErrInvalidInput)
	}
	code := strings.TrimSpace(c.Currency)
	if code == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if !strings.EqualFold(code, expectedCurrency) {
		return fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, c.Currency)
	}
	for i, line := range c.Lines {
		if line.Qty <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidInput, i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price cannot be negative", ErrInvalidInput, i)
		}
		if line.AdditionalShippingCharge.IsNegative() {
			return fmt.Errorf("%w: line %d shipping charge cannot be negative", ErrInvalidInput, i)
		}
	}
	if c.RedeemPoints < 0 {
		return fmt.Errorf("%w: redeem points cannot be negative", ErrInvalidInput)
	}
	return nil
}
