// Package discount aggregates pre-resolved discounts against a monetary base.
// Which discounts apply to a cart is decided by an external resolver; this
// package only combines the amounts.
package discount

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedMode is returned when the configured combination mode is not
// recognised.
var ErrUnsupportedMode = errors.New("unsupported discount combination mode")

// Kind discriminates how a discount's reduction is computed.
type Kind string

const (
	// KindFixed reduces the base by a fixed currency amount.
	KindFixed Kind = "fixed"
	// KindPercent reduces the base by a fraction expressed in basis points.
	KindPercent Kind = "percent"
)

// Scope declares which figure a discount reduces.
type Scope string

const (
	// ScopeSubtotal discounts reduce the order subtotal.
	ScopeSubtotal Scope = "subtotal"
	// ScopeShipping discounts reduce the shipping charge.
	ScopeShipping Scope = "shipping"
	// ScopeTotal discounts reduce the order total.
	ScopeTotal Scope = "total"
)

// Mode selects how multiple applicable discounts are combined.
type Mode string

const (
	// ModeCombineAll sums every discount's contribution, each computed
	// against the original base.
	ModeCombineAll Mode = "COMBINE_ALL"
	// ModeHighestOnly keeps only the single discount with the greatest
	// reduction.
	ModeHighestOnly Mode = "HIGHEST_ONLY"
)

// ParseMode maps a configuration string onto a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "COMBINE_ALL":
		return ModeCombineAll, nil
	case "HIGHEST_ONLY":
		return ModeHighestOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, name)
	}
}

// Discount is a single resolved discount. Eligibility has already been
// decided by the resolver that produced it.
type Discount struct {
	ID         uuid.UUID
	Kind       Kind
	Scope      Scope
	Amount     decimal.Decimal
	PercentBps int32
}

// Reduction computes the currency reduction this discount yields against the
// provided base. Percent discounts are computed against the original base,
// never against a progressively discounted one.
func (d Discount) Reduction(base decimal.Decimal) decimal.Decimal {
	if d.Kind == KindPercent {
		if d.PercentBps <= 0 {
			return decimal.Zero
		}
		return base.Mul(decimal.NewFromInt32(d.PercentBps)).Div(decimal.NewFromInt(10000))
	}
	if d.Amount.IsNegative() {
		return decimal.Zero
	}
	return d.Amount
}

// Result reports the aggregated reduction and which discounts contributed.
type Result struct {
	Total   decimal.Decimal
	Applied []uuid.UUID
}

// Split separates discounts by scope so shipping-scoped entries can be
// forwarded to the shipping calculator.
func Split(discounts []Discount) (subtotal, shipping, total []Discount) {
	for _, d := range discounts {
		switch d.Scope {
		case ScopeShipping:
			shipping = append(shipping, d)
		case ScopeTotal:
			total = append(total, d)
		default:
			subtotal = append(subtotal, d)
		}
	}
	return subtotal, shipping, total
}

// Aggregate combines the provided discounts against base according to mode.
// The aggregated reduction never exceeds base, so the discounted figure is
// floored at zero.
func Aggregate(base decimal.Decimal, discounts []Discount, mode Mode) (Result, error) {
	if len(discounts) == 0 || base.Sign() <= 0 {
		return Result{Total: decimal.Zero}, nil
	}

	switch mode {
	case ModeCombineAll, "":
		total := decimal.Zero
		applied := make([]uuid.UUID, 0, len(discounts))
		for _, d := range discounts {
			reduction := d.Reduction(base)
			if reduction.Sign() <= 0 {
				continue
			}
			total = total.Add(reduction)
			applied = append(applied, d.ID)
		}
		if total.GreaterThan(base) {
			total = base
		}
		return Result{Total: total, Applied: applied}, nil

	case ModeHighestOnly:
		var (
			best    decimal.Decimal
			bestID  uuid.UUID
			found   bool
			applied []uuid.UUID
		)
		for _, d := range discounts {
			reduction := d.Reduction(base)
			if reduction.Sign() <= 0 {
				continue
			}
			// Ties break toward the lowest identifier for determinism.
			if !found || reduction.GreaterThan(best) ||
				(reduction.Equal(best) && bytes.Compare(d.ID[:], bestID[:]) < 0) {
				best = reduction
				bestID = d.ID
				found = true
			}
		}
		if !found {
			return Result{Total: decimal.Zero}, nil
		}
		if best.GreaterThan(base) {
			best = base
		}
		applied = []uuid.UUID{bestID}
		return Result{Total: best, Applied: applied}, nil

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}
