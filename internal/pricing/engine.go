// Package pricing orchestrates the order-total pipeline: subtotal, discounts,
// shipping, tax, loyalty points and the final rounded figures. The engine is
// pure and stateless per call; every collaborator lookup is injected.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/cart"
	"github.com/noah-isme/pricing-api/internal/discount"
	"github.com/noah-isme/pricing-api/internal/loyalty"
	"github.com/noah-isme/pricing-api/internal/money"
	"github.com/noah-isme/pricing-api/internal/shipping"
	"github.com/noah-isme/pricing-api/internal/tax"
)

// ErrCollaborator wraps failures of upstream resolvers. The calculation
// aborts as a whole; no partially computed total is ever returned.
var ErrCollaborator = errors.New("collaborator failure")

// WarningInsufficientPoints flags a redemption request below the store's
// minimum-usage threshold. The total is computed without redemption.
const WarningInsufficientPoints = "INSUFFICIENT_POINTS"

// DiscountResolver supplies the discounts applicable to a cart. Eligibility
// is decided by the resolver, never by the engine.
type DiscountResolver interface {
	Resolve(ctx context.Context, c cart.Cart) ([]discount.Discount, error)
}

// GroupResolver supplies shipping-rate adjustments for the customer's groups
// and whether any group grants free shipping.
type GroupResolver interface {
	Adjustments(ctx context.Context, groups []uuid.UUID) ([]shipping.GroupAdjustment, bool, error)
}

// Settings are the store-level knobs resolved once before the pipeline runs.
type Settings struct {
	Currency            money.Currency
	TaxDisplayMode      tax.DisplayMode
	DiscountMode        discount.Mode
	ShippingTaxable     bool
	ShippingTaxCategory string
	BaseShippingRate    decimal.Decimal
	PointsExchangeRate  decimal.Decimal
	MinimumPointsToUse  int64
}

// Validate rejects unusable settings at startup rather than per request.
func (s Settings) Validate() error {
	if err := s.Currency.Validate(); err != nil {
		return err
	}
	if s.BaseShippingRate.IsNegative() {
		return errors.New("base shipping rate cannot be negative")
	}
	if s.PointsExchangeRate.IsNegative() {
		return errors.New("points exchange rate cannot be negative")
	}
	if s.MinimumPointsToUse < 0 {
		return errors.New("minimum points to use cannot be negative")
	}
	if _, err := tax.ParseDisplayMode(string(s.TaxDisplayMode)); err != nil {
		return err
	}
	if _, err := discount.ParseMode(string(s.DiscountMode)); err != nil {
		return err
	}
	return nil
}

// Result is the fully itemized order total. Constructed once per calculation,
// immutable, never persisted by the engine.
type Result struct {
	Subtotal           money.Amount   `json:"subtotal"`
	SubtotalDiscounted money.Amount   `json:"subtotalDiscounted"`
	DiscountTotal      money.Amount   `json:"discountTotal"`
	ShippingTotal      money.Amount   `json:"shippingTotal"`
	TaxTotal           money.Amount   `json:"taxTotal"`
	TaxBreakdown       []tax.RateLine `json:"taxBreakdown,omitempty"`
	// DisplayBase is the combined base adjusted for display mode: the net
	// figure under EXCLUDING_TAX, the gross one under INCLUDING_TAX.
	DisplayBase      money.Amount    `json:"displayBase"`
	AppliedDiscounts []uuid.UUID     `json:"appliedDiscounts,omitempty"`
	RedeemedPoints   int64           `json:"redeemedPoints"`
	RedeemedValue    money.Amount    `json:"redeemedValue"`
	GrandTotal       money.Amount    `json:"grandTotal"`
	TaxDisplayMode   tax.DisplayMode `json:"taxDisplayMode"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// Engine sequences the calculation stages. Safe for unlimited concurrent use;
// each call works on an independent cart snapshot.
type Engine struct {
	Tax       *tax.Calculator
	Discounts DiscountResolver
	Groups    GroupResolver
	Settings  Settings
}

// ComputeOrderTotal runs the pipeline. Intermediate sums are never rounded;
// only the final reported figures pass through the rounding engine, each
// individually.
func (e *Engine) ComputeOrderTotal(ctx context.Context, c cart.Cart) (Result, error) {
	s := e.Settings
	if err := c.Validate(s.Currency.Code); err != nil {
		return Result{}, err
	}

	// Subtotal: unit price times quantity across all lines.
	subtotal := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.Total())
	}

	// Discounts: resolve once, split by scope.
	var discounts []discount.Discount
	if e.Discounts != nil {
		var err error
		discounts, err = e.Discounts.Resolve(ctx, c)
		if err != nil {
			return Result{}, fmt.Errorf("%w: resolve discounts: %w", ErrCollaborator, err)
		}
	}
	subScoped, shipScoped, totalScoped := discount.Split(discounts)

	subAgg, err := discount.Aggregate(subtotal, subScoped, s.DiscountMode)
	if err != nil {
		return Result{}, err
	}
	subDiscount, err := s.Currency.Round(subAgg.Total)
	if err != nil {
		return Result{}, err
	}
	discountedSubtotal := subtotal.Sub(subDiscount)
	if discountedSubtotal.IsNegative() {
		discountedSubtotal = decimal.Zero
	}
	applied := append([]uuid.UUID(nil), subAgg.Applied...)

	// Shipping: group-adjusted base rate plus per-line surcharges.
	var (
		groupAdjustments []shipping.GroupAdjustment
		groupFree        bool
	)
	if e.Groups != nil && len(c.GroupIDs) > 0 {
		groupAdjustments, groupFree, err = e.Groups.Adjustments(ctx, c.GroupIDs)
		if err != nil {
			return Result{}, fmt.Errorf("%w: resolve group adjustments: %w", ErrCollaborator, err)
		}
	}
	shipLines := make([]shipping.Line, 0, len(c.Lines))
	for _, line := range c.Lines {
		shipLines = append(shipLines, shipping.Line{
			Qty:              line.Qty,
			ShipEnabled:      line.ShipEnabled,
			FreeShipping:     line.FreeShipping,
			AdditionalCharge: line.AdditionalShippingCharge,
		})
	}
	shipRes, err := shipping.Compute(shipping.Input{
		Lines:            shipLines,
		BaseRate:         s.BaseShippingRate,
		Adjustments:      groupAdjustments,
		Discounts:        shipScoped,
		CartFreeShipping: c.FreeShipping,
		GroupFree:        groupFree,
	}, s.DiscountMode)
	if err != nil {
		return Result{}, err
	}
	applied = append(applied, shipRes.AppliedDiscounts...)

	// Tax: per-line bases carry the subtotal discount proportionally so
	// mixed categories stay correct. Shipping joins the taxable base when
	// the store taxes shipping.
	taxLines := make([]tax.Line, 0, len(c.Lines)+1)
	ratio := decimal.NewFromInt(1)
	if subtotal.Sign() > 0 {
		ratio = discountedSubtotal.Div(subtotal)
	}
	for _, line := range c.Lines {
		taxLines = append(taxLines, tax.Line{
			Base:     line.Total().Mul(ratio),
			Category: line.TaxCategory,
		})
	}
	if s.ShippingTaxable && shipRes.Total.Sign() > 0 {
		taxLines = append(taxLines, tax.Line{Base: shipRes.Total, Category: s.ShippingTaxCategory})
	}
	taxRes, err := e.Tax.Compute(ctx, taxLines, c.TaxExempt, s.TaxDisplayMode, c.CustomerLocation)
	if err != nil {
		if errors.Is(err, tax.ErrResolver) {
			return Result{}, fmt.Errorf("%w: %w", ErrCollaborator, err)
		}
		return Result{}, err
	}

	// The grand total is display-mode independent: tax is always part of
	// it; the mode only decides which sub-figure it is split from.
	grand := discountedSubtotal.Add(shipRes.Total).Add(taxRes.Tax)
	discountTotal := subDiscount.Add(shipRes.DiscountTotal)

	if len(totalScoped) > 0 {
		totAgg, aggErr := discount.Aggregate(grand, totalScoped, s.DiscountMode)
		if aggErr != nil {
			return Result{}, aggErr
		}
		totDiscount, roundErr := s.Currency.Round(totAgg.Total)
		if roundErr != nil {
			return Result{}, roundErr
		}
		grand = grand.Sub(totDiscount)
		if grand.IsNegative() {
			grand = decimal.Zero
		}
		discountTotal = discountTotal.Add(totDiscount)
		applied = append(applied, totAgg.Applied...)
	}

	// Loyalty points: the minimum-usage gate rejects the request outright;
	// it never silently clamps.
	var (
		warnings      []string
		redeemedValue = decimal.Zero
		redeemed      int64
	)
	if c.RedeemPoints > 0 {
		if !loyalty.CheckMinimumUsage(c.RedeemPoints, s.MinimumPointsToUse) {
			warnings = append(warnings, WarningInsufficientPoints)
		} else {
			redeemedValue, err = loyalty.PointsToAmount(c.RedeemPoints, s.PointsExchangeRate, s.Currency.Decimals, s.Currency.Policy, s.Currency.Midpoint)
			if err != nil {
				return Result{}, err
			}
			redeemed = c.RedeemPoints
			grand = grand.Sub(redeemedValue)
			if grand.IsNegative() {
				grand = decimal.Zero
			}
		}
	}

	return e.finalize(subtotal, discountedSubtotal, discountTotal, shipRes.Total, taxRes, grand, applied, redeemed, redeemedValue, warnings)
}

// finalize rounds every reported figure individually and assembles the result.
func (e *Engine) finalize(subtotal, discountedSubtotal, discountTotal, shippingTotal decimal.Decimal, taxRes tax.Result, grand decimal.Decimal, applied []uuid.UUID, redeemed int64, redeemedValue decimal.Decimal, warnings []string) (Result, error) {
	cur := e.Settings.Currency
	out := Result{
		TaxDisplayMode:   e.Settings.TaxDisplayMode,
		TaxBreakdown:     taxRes.Breakdown,
		AppliedDiscounts: applied,
		RedeemedPoints:   redeemed,
		Warnings:         warnings,
	}
	var err error
	if out.Subtotal, err = cur.RoundAmount(subtotal); err != nil {
		return Result{}, err
	}
	if out.SubtotalDiscounted, err = cur.RoundAmount(discountedSubtotal); err != nil {
		return Result{}, err
	}
	if out.DiscountTotal, err = cur.RoundAmount(discountTotal); err != nil {
		return Result{}, err
	}
	if out.ShippingTotal, err = cur.RoundAmount(shippingTotal); err != nil {
		return Result{}, err
	}
	if out.TaxTotal, err = cur.RoundAmount(taxRes.Tax); err != nil {
		return Result{}, err
	}
	if out.DisplayBase, err = cur.RoundAmount(taxRes.DisplayBase); err != nil {
		return Result{}, err
	}
	if out.RedeemedValue, err = cur.RoundAmount(redeemedValue); err != nil {
		return Result{}, err
	}
	if out.GrandTotal, err = cur.RoundAmount(grand); err != nil {
		return Result{}, err
	}
	return out, nil
}

// StaticDiscounts adapts a pre-resolved discount list to DiscountResolver.
// The HTTP surface uses it to pass request-supplied discounts through.
type StaticDiscounts []discount.Discount

// Resolve implements DiscountResolver.
func (s StaticDiscounts) Resolve(context.Context, cart.Cart) ([]discount.Discount, error) {
	return s, nil
}

// StaticGroups adapts a pre-resolved adjustment table to GroupResolver.
type StaticGroups struct {
	Table        []shipping.GroupAdjustment
	FreeShipping bool
}

// Adjustments implements GroupResolver.
func (s StaticGroups) Adjustments(_ context.Context, groups []uuid.UUID) ([]shipping.GroupAdjustment, bool, error) {
	members := map[uuid.UUID]struct{}{}
	for _, id := range groups {
		members[id] = struct{}{}
	}
	out := make([]shipping.GroupAdjustment, 0, len(s.Table))
	for _, adj := range s.Table {
		if _, ok := members[adj.GroupID]; ok {
			out = append(out, adj)
		}
	}
	return out, s.FreeShipping, nil
}
