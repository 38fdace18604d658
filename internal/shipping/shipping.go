// Package shipping computes the shipping charge for a cart: the base rate
// adjusted per customer group, per-line surcharges, free-shipping overrides
// and shipping-scoped discounts.
package shipping

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/discount"
)

// AdjustmentKind discriminates how a customer-group adjustment modifies the
// base shipping rate.
type AdjustmentKind string

const (
	// AdjustPercent scales the base rate by a fraction expressed in basis
	// points. Negative values discount the rate.
	AdjustPercent AdjustmentKind = "percent"
	// AdjustFixed adds a fixed amount to the base rate. Negative values
	// discount the rate.
	AdjustFixed AdjustmentKind = "fixed"
)

// GroupAdjustment is a customer group's configured shipping-rate adjustment.
type GroupAdjustment struct {
	GroupID    uuid.UUID
	Kind       AdjustmentKind
	PercentBps int32
	Amount     decimal.Decimal
}

// Apply returns the base rate with this adjustment applied, floored at zero.
func (a GroupAdjustment) Apply(base decimal.Decimal) decimal.Decimal {
	var rate decimal.Decimal
	switch a.Kind {
	case AdjustPercent:
		factor := decimal.NewFromInt(10000).Add(decimal.NewFromInt32(a.PercentBps))
		rate = base.Mul(factor).Div(decimal.NewFromInt(10000))
	default:
		rate = base.Add(a.Amount)
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

// ParseAdjustmentKind maps a payload string onto an AdjustmentKind.
func ParseAdjustmentKind(name string) (AdjustmentKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		return AdjustFixed, nil
	case "percent", "percentage":
		return AdjustPercent, nil
	default:
		return "", fmt.Errorf("unsupported shipping adjustment kind: %q", name)
	}
}

// Line is the shipping-relevant slice of a cart line.
type Line struct {
	Qty              int
	ShipEnabled      bool
	FreeShipping     bool
	AdditionalCharge decimal.Decimal
}

// Input gathers everything the charge computation needs. All collaborator
// data (group table, discounts, cart-level rule) is resolved before the call.
type Input struct {
	Lines            []Line
	BaseRate         decimal.Decimal
	Adjustments      []GroupAdjustment
	Discounts        []discount.Discount
	CartFreeShipping bool
	GroupFree        bool
}

// Result reports the charge plus the sub-figures callers display separately.
type Result struct {
	Total             decimal.Decimal
	AdditionalCharges decimal.Decimal
	DiscountTotal     decimal.Decimal
	AppliedDiscounts  []uuid.UUID
	FreeShipping      bool
}

// Compute derives the shipping charge. Any free-shipping grant forces the
// total to exactly zero regardless of summed surcharges.
func Compute(in Input, mode discount.Mode) (Result, error) {
	free := in.CartFreeShipping || in.GroupFree
	surcharges := decimal.Zero
	for _, line := range in.Lines {
		if !line.ShipEnabled {
			continue
		}
		if line.FreeShipping {
			free = true
			continue
		}
		if line.Qty <= 0 || line.AdditionalCharge.Sign() <= 0 {
			continue
		}
		surcharges = surcharges.Add(line.AdditionalCharge.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	if free {
		return Result{Total: decimal.Zero, AdditionalCharges: decimal.Zero, FreeShipping: true}, nil
	}

	total := cheapestRate(in.BaseRate, in.Adjustments).Add(surcharges)

	agg, err := discount.Aggregate(total, in.Discounts, mode)
	if err != nil {
		return Result{}, err
	}
	total = total.Sub(agg.Total)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Result{
		Total:             total,
		AdditionalCharges: surcharges,
		DiscountTotal:     agg.Total,
		AppliedDiscounts:  agg.Applied,
	}, nil
}

// cheapestRate applies every group adjustment to the base rate and keeps the
// cheapest outcome. Ties break toward the lowest group identifier, which the
// strict comparison preserves when candidates are visited in sorted order.
func cheapestRate(base decimal.Decimal, adjustments []GroupAdjustment) decimal.Decimal {
	if base.IsNegative() {
		base = decimal.Zero
	}
	if len(adjustments) == 0 {
		return base
	}
	sorted := make([]GroupAdjustment, len(adjustments))
	copy(sorted, adjustments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].GroupID[:], sorted[j].GroupID[:]) < 0
	})
	best := sorted[0].Apply(base)
	for _, adj := range sorted[1:] {
		if candidate := adj.Apply(base); candidate.LessThan(best) {
			best = candidate
		}
	}
	return best
}
