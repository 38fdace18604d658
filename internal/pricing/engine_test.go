package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/cart"
	"github.com/noah-isme/pricing-api/internal/discount"
	"github.com/noah-isme/pricing-api/internal/money"
	"github.com/noah-isme/pricing-api/internal/rounding"
	"github.com/noah-isme/pricing-api/internal/shipping"
	"github.com/noah-isme/pricing-api/internal/tax"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func uuidMust(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}

func testSettings() Settings {
	return Settings{
		Currency: money.Currency{
			Code:     "USD",
			Decimals: 2,
			Policy:   rounding.PolicyNearest,
			Midpoint: rounding.MidpointHalfUp,
		},
		TaxDisplayMode:      tax.DisplayExcluding,
		DiscountMode:        discount.ModeCombineAll,
		ShippingTaxCategory: "shipping",
		BaseShippingRate:    decimal.Zero,
		PointsExchangeRate:  decimal.NewFromInt(1),
	}
}

func newEngine(settings Settings, rate string, discounts []discount.Discount) *Engine {
	return &Engine{
		Tax: &tax.Calculator{
			Resolver: tax.StaticResolver{DefaultRate: dec(rate)},
			Decimals: settings.Currency.Decimals,
			Policy:   settings.Currency.Policy,
			Midpoint: settings.Currency.Midpoint,
		},
		Discounts: StaticDiscounts(discounts),
		Groups:    StaticGroups{},
		Settings:  settings,
	}
}

func TestComputeShippingSurchargeTaxExempt(t *testing.T) {
	engine := newEngine(testSettings(), "0.25", nil)
	c := cart.Cart{
		Currency:  "USD",
		TaxExempt: true,
		Lines: []cart.Line{
			{UnitPrice: dec("10.00"), Qty: 1, ShipEnabled: true, AdditionalShippingCharge: dec("10")},
		},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.ShippingTotal.Value.Equal(dec("10")) {
		t.Fatalf("expected shipping total 10, got %s", res.ShippingTotal.Value)
	}
	if !res.TaxTotal.Value.IsZero() {
		t.Fatalf("expected zero tax, got %s", res.TaxTotal.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("20")) {
		t.Fatalf("expected grand total 20, got %s", res.GrandTotal.Value)
	}
}

func TestComputeFreeShippingLineZeroesCharge(t *testing.T) {
	engine := newEngine(testSettings(), "0", nil)
	c := cart.Cart{
		Currency: "USD",
		Lines: []cart.Line{
			{UnitPrice: dec("10.00"), Qty: 1, ShipEnabled: true, FreeShipping: true, AdditionalShippingCharge: dec("10")},
		},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.ShippingTotal.Value.IsZero() {
		t.Fatalf("expected zero shipping, got %s", res.ShippingTotal.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("10")) {
		t.Fatalf("expected grand total 10, got %s", res.GrandTotal.Value)
	}
}

func TestComputeDisplayModeInvariance(t *testing.T) {
	c := cart.Cart{
		Currency: "USD",
		Lines: []cart.Line{
			{UnitPrice: dec("50.00"), Qty: 2},
		},
	}

	excl := testSettings()
	excl.TaxDisplayMode = tax.DisplayExcluding
	incl := testSettings()
	incl.TaxDisplayMode = tax.DisplayIncluding

	resExcl, err := newEngine(excl, "0.11", nil).ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute excluding: %v", err)
	}
	resIncl, err := newEngine(incl, "0.11", nil).ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute including: %v", err)
	}

	if !resExcl.GrandTotal.Value.Equal(resIncl.GrandTotal.Value) {
		t.Fatalf("grand total differs by display mode: %s vs %s", resExcl.GrandTotal.Value, resIncl.GrandTotal.Value)
	}
	if !resExcl.GrandTotal.Value.Equal(dec("111")) {
		t.Fatalf("expected grand total 111, got %s", resExcl.GrandTotal.Value)
	}
	if !resExcl.DisplayBase.Value.Equal(dec("100")) {
		t.Fatalf("expected excluding display base 100, got %s", resExcl.DisplayBase.Value)
	}
	if !resIncl.DisplayBase.Value.Equal(dec("111")) {
		t.Fatalf("expected including display base 111, got %s", resIncl.DisplayBase.Value)
	}
}

func TestComputeDiscountFloor(t *testing.T) {
	discounts := []discount.Discount{
		{ID: uuidMust("11111111-1111-1111-1111-111111111111"), Kind: discount.KindFixed, Scope: discount.ScopeSubtotal, Amount: dec("500")},
	}
	engine := newEngine(testSettings(), "0", discounts)
	c := cart.Cart{
		Currency: "USD",
		Lines:    []cart.Line{{UnitPrice: dec("10.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.SubtotalDiscounted.Value.IsZero() {
		t.Fatalf("expected discounted subtotal floored at zero, got %s", res.SubtotalDiscounted.Value)
	}
	if !res.GrandTotal.Value.IsZero() {
		t.Fatalf("expected zero grand total, got %s", res.GrandTotal.Value)
	}
	if !res.DiscountTotal.Value.Equal(dec("10")) {
		t.Fatalf("expected discount clamped to base, got %s", res.DiscountTotal.Value)
	}
}

func TestComputeSubtotalDiscountScalesTax(t *testing.T) {
	discounts := []discount.Discount{
		{ID: uuidMust("11111111-1111-1111-1111-111111111111"), Kind: discount.KindPercent, Scope: discount.ScopeSubtotal, PercentBps: 5000},
	}
	engine := newEngine(testSettings(), "0.10", discounts)
	c := cart.Cart{
		Currency: "USD",
		Lines:    []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.SubtotalDiscounted.Value.Equal(dec("50")) {
		t.Fatalf("expected discounted subtotal 50, got %s", res.SubtotalDiscounted.Value)
	}
	// Tax applies to the discounted base.
	if !res.TaxTotal.Value.Equal(dec("5")) {
		t.Fatalf("expected tax 5, got %s", res.TaxTotal.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("55")) {
		t.Fatalf("expected grand total 55, got %s", res.GrandTotal.Value)
	}
}

func TestComputeShippingTaxable(t *testing.T) {
	settings := testSettings()
	settings.ShippingTaxable = true
	settings.BaseShippingRate = dec("10")
	engine := newEngine(settings, "0.10", nil)
	c := cart.Cart{
		Currency: "USD",
		Lines:    []cart.Line{{UnitPrice: dec("100.00"), Qty: 1, ShipEnabled: true}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.ShippingTotal.Value.Equal(dec("10")) {
		t.Fatalf("expected shipping 10, got %s", res.ShippingTotal.Value)
	}
	// Tax covers subtotal and shipping.
	if !res.TaxTotal.Value.Equal(dec("11")) {
		t.Fatalf("expected tax 11, got %s", res.TaxTotal.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("121")) {
		t.Fatalf("expected grand total 121, got %s", res.GrandTotal.Value)
	}
}

func TestComputeHighestOnlyMode(t *testing.T) {
	settings := testSettings()
	settings.DiscountMode = discount.ModeHighestOnly
	discounts := []discount.Discount{
		{ID: uuidMust("11111111-1111-1111-1111-111111111111"), Kind: discount.KindFixed, Scope: discount.ScopeSubtotal, Amount: dec("10")},
		{ID: uuidMust("22222222-2222-2222-2222-222222222222"), Kind: discount.KindFixed, Scope: discount.ScopeSubtotal, Amount: dec("30")},
	}
	engine := newEngine(settings, "0", discounts)
	c := cart.Cart{
		Currency: "USD",
		Lines:    []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.DiscountTotal.Value.Equal(dec("30")) {
		t.Fatalf("expected highest discount 30, got %s", res.DiscountTotal.Value)
	}
	if len(res.AppliedDiscounts) != 1 || res.AppliedDiscounts[0] != uuidMust("22222222-2222-2222-2222-222222222222") {
		t.Fatalf("unexpected applied discounts %v", res.AppliedDiscounts)
	}
}

func TestComputeTotalScopedDiscount(t *testing.T) {
	discounts := []discount.Discount{
		{ID: uuidMust("11111111-1111-1111-1111-111111111111"), Kind: discount.KindFixed, Scope: discount.ScopeTotal, Amount: dec("20")},
	}
	engine := newEngine(testSettings(), "0.10", discounts)
	c := cart.Cart{
		Currency: "USD",
		Lines:    []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 100 + 10 tax - 20 total-scoped discount.
	if !res.GrandTotal.Value.Equal(dec("90")) {
		t.Fatalf("expected grand total 90, got %s", res.GrandTotal.Value)
	}
	if !res.DiscountTotal.Value.Equal(dec("20")) {
		t.Fatalf("expected discount total 20, got %s", res.DiscountTotal.Value)
	}
}

func TestComputeInsufficientPointsWarns(t *testing.T) {
	settings := testSettings()
	settings.MinimumPointsToUse = 20
	engine := newEngine(settings, "0", nil)
	c := cart.Cart{
		Currency:     "USD",
		RedeemPoints: 10,
		Lines:        []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarningInsufficientPoints {
		t.Fatalf("expected insufficient points warning, got %v", res.Warnings)
	}
	if res.RedeemedPoints != 0 || !res.RedeemedValue.Value.IsZero() {
		t.Fatalf("expected no redemption, got %d points worth %s", res.RedeemedPoints, res.RedeemedValue.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("100")) {
		t.Fatalf("expected total computed without redemption, got %s", res.GrandTotal.Value)
	}
}

func TestComputeRedeemsPoints(t *testing.T) {
	engine := newEngine(testSettings(), "0", nil)
	c := cart.Cart{
		Currency:     "USD",
		RedeemPoints: 30,
		Lines:        []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.RedeemedPoints != 30 || !res.RedeemedValue.Value.Equal(dec("30")) {
		t.Fatalf("expected 30 points redeemed, got %d worth %s", res.RedeemedPoints, res.RedeemedValue.Value)
	}
	if !res.GrandTotal.Value.Equal(dec("70")) {
		t.Fatalf("expected grand total 70, got %s", res.GrandTotal.Value)
	}
}

func TestComputeRedemptionFloorsAtZero(t *testing.T) {
	engine := newEngine(testSettings(), "0", nil)
	c := cart.Cart{
		Currency:     "USD",
		RedeemPoints: 500,
		Lines:        []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.GrandTotal.Value.IsZero() {
		t.Fatalf("expected grand total floored at zero, got %s", res.GrandTotal.Value)
	}
}

type failingDiscounts struct{}

func (failingDiscounts) Resolve(context.Context, cart.Cart) ([]discount.Discount, error) {
	return nil, errors.New("discount source down")
}

type failingGroups struct{}

func (failingGroups) Adjustments(context.Context, []uuid.UUID) ([]shipping.GroupAdjustment, bool, error) {
	return nil, false, errors.New("group source down")
}

func TestComputeCollaboratorFailureAborts(t *testing.T) {
	c := cart.Cart{
		Currency: "USD",
		GroupIDs: []uuid.UUID{uuidMust("11111111-1111-1111-1111-111111111111")},
		Lines:    []cart.Line{{UnitPrice: dec("100.00"), Qty: 1}},
	}

	engine := newEngine(testSettings(), "0", nil)
	engine.Discounts = failingDiscounts{}
	if _, err := engine.ComputeOrderTotal(context.Background(), c); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected ErrCollaborator from discount resolver, got %v", err)
	}

	engine = newEngine(testSettings(), "0", nil)
	engine.Groups = failingGroups{}
	if _, err := engine.ComputeOrderTotal(context.Background(), c); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected ErrCollaborator from group resolver, got %v", err)
	}

	engine = newEngine(testSettings(), "0", nil)
	engine.Tax.Resolver = errRateResolver{}
	if _, err := engine.ComputeOrderTotal(context.Background(), c); !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected ErrCollaborator from tax resolver, got %v", err)
	}
}

type errRateResolver struct{}

func (errRateResolver) Rate(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("rate provider down")
}

func TestComputeInvalidCartRejected(t *testing.T) {
	engine := newEngine(testSettings(), "0", nil)
	_, err := engine.ComputeOrderTotal(context.Background(), cart.Cart{Currency: "USD"})
	if !errors.Is(err, cart.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestComputeGroupAdjustmentPicksCheapestRate(t *testing.T) {
	settings := testSettings()
	settings.BaseShippingRate = dec("10")
	engine := newEngine(settings, "0", nil)
	engine.Groups = StaticGroups{Table: []shipping.GroupAdjustment{
		{GroupID: uuidMust("11111111-1111-1111-1111-111111111111"), Kind: shipping.AdjustFixed, Amount: dec("-5")},
		{GroupID: uuidMust("22222222-2222-2222-2222-222222222222"), Kind: shipping.AdjustPercent, PercentBps: -2000},
	}}
	c := cart.Cart{
		Currency: "USD",
		GroupIDs: []uuid.UUID{
			uuidMust("11111111-1111-1111-1111-111111111111"),
			uuidMust("22222222-2222-2222-2222-222222222222"),
		},
		Lines: []cart.Line{{UnitPrice: dec("100.00"), Qty: 1, ShipEnabled: true}},
	}
	res, err := engine.ComputeOrderTotal(context.Background(), c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.ShippingTotal.Value.Equal(dec("5")) {
		t.Fatalf("expected cheapest rate 5, got %s", res.ShippingTotal.Value)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := testSettings().Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}

	bad := testSettings()
	bad.Currency.Policy = "CASH_0001"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown rounding policy")
	}

	bad = testSettings()
	bad.BaseShippingRate = dec("-1")
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for negative base shipping rate")
	}

	bad = testSettings()
	bad.DiscountMode = "BEST_TWO"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown discount mode")
	}
}
