package tax

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rounding"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCalculator(resolver RateResolver) *Calculator {
	return &Calculator{
		Resolver: resolver,
		Decimals: 2,
		Policy:   rounding.PolicyNearest,
		Midpoint: rounding.MidpointHalfUp,
	}
}

type errResolver struct{}

func (errResolver) Rate(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("upstream down")
}

func TestComputeExempt(t *testing.T) {
	calc := newCalculator(StaticResolver{DefaultRate: dec("0.25")})
	res, err := calc.Compute(context.Background(), []Line{{Base: dec("100")}}, true, DisplayIncluding, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Tax.IsZero() {
		t.Fatalf("expected zero tax for exempt customer, got %s", res.Tax)
	}
	if !res.DisplayBase.Equal(dec("100")) {
		t.Fatalf("expected base unchanged, got %s", res.DisplayBase)
	}
}

func TestComputeMixedRates(t *testing.T) {
	resolver := StaticResolver{Rates: map[string]decimal.Decimal{
		"standard": dec("0.10"),
		"luxury":   dec("0.20"),
	}}
	calc := newCalculator(resolver)
	lines := []Line{
		{Base: dec("100"), Category: "standard"},
		{Base: dec("50"), Category: "luxury"},
		{Base: dec("30"), Category: "standard"},
	}
	res, err := calc.Compute(context.Background(), lines, false, DisplayExcluding, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Tax.Equal(dec("23")) {
		t.Fatalf("expected total tax 23, got %s", res.Tax)
	}
	if len(res.Breakdown) != 2 {
		t.Fatalf("expected 2 breakdown rows, got %d", len(res.Breakdown))
	}
	sum := decimal.Zero
	for _, row := range res.Breakdown {
		sum = sum.Add(row.Tax)
	}
	if !sum.Equal(res.Tax) {
		t.Fatalf("breakdown sums to %s, total is %s", sum, res.Tax)
	}
}

func TestComputeRoundsPerRateNotPerLine(t *testing.T) {
	calc := newCalculator(StaticResolver{DefaultRate: dec("0.10")})
	lines := []Line{
		{Base: dec("10.333")},
		{Base: dec("10.333")},
		{Base: dec("10.333")},
	}
	res, err := calc.Compute(context.Background(), lines, false, DisplayExcluding, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// Per-line rounding would give 1.03*3 = 3.09; aggregating first gives
	// 3.0999 which rounds to 3.10.
	if !res.Tax.Equal(dec("3.10")) {
		t.Fatalf("expected 3.10, got %s", res.Tax)
	}
}

func TestComputeDisplayModes(t *testing.T) {
	calc := newCalculator(StaticResolver{DefaultRate: dec("0.11")})
	lines := []Line{{Base: dec("100")}}

	excl, err := calc.Compute(context.Background(), lines, false, DisplayExcluding, "")
	if err != nil {
		t.Fatalf("compute excluding: %v", err)
	}
	incl, err := calc.Compute(context.Background(), lines, false, DisplayIncluding, "")
	if err != nil {
		t.Fatalf("compute including: %v", err)
	}
	if !excl.Tax.Equal(incl.Tax) {
		t.Fatalf("tax differs by display mode: %s vs %s", excl.Tax, incl.Tax)
	}
	if !excl.DisplayBase.Equal(dec("100")) {
		t.Fatalf("expected excluding display base 100, got %s", excl.DisplayBase)
	}
	if !incl.DisplayBase.Equal(dec("111")) {
		t.Fatalf("expected including display base 111, got %s", incl.DisplayBase)
	}
}

func TestComputeZeroRateSkipped(t *testing.T) {
	calc := newCalculator(StaticResolver{})
	res, err := calc.Compute(context.Background(), []Line{{Base: dec("100")}}, false, DisplayExcluding, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Tax.IsZero() || len(res.Breakdown) != 0 {
		t.Fatalf("expected no tax rows at zero rate, got %s (%d rows)", res.Tax, len(res.Breakdown))
	}
}

func TestComputeResolverFailure(t *testing.T) {
	calc := newCalculator(errResolver{})
	_, err := calc.Compute(context.Background(), []Line{{Base: dec("100")}}, false, DisplayExcluding, "")
	if !errors.Is(err, ErrResolver) {
		t.Fatalf("expected ErrResolver, got %v", err)
	}
}

func TestStaticResolverFallback(t *testing.T) {
	resolver := StaticResolver{
		Rates:       map[string]decimal.Decimal{"books": dec("0.05")},
		DefaultRate: dec("0.20"),
	}
	rate, err := resolver.Rate(context.Background(), "Books", "anywhere")
	if err != nil || !rate.Equal(dec("0.05")) {
		t.Fatalf("expected 0.05 for known category, got %s, %v", rate, err)
	}
	rate, err = resolver.Rate(context.Background(), "unknown", "anywhere")
	if err != nil || !rate.Equal(dec("0.20")) {
		t.Fatalf("expected default 0.20, got %s, %v", rate, err)
	}
}

func TestParseRateTable(t *testing.T) {
	rates, err := ParseRateTable("standard=0.11, Books=0.05")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !rates["standard"].Equal(dec("0.11")) || !rates["books"].Equal(dec("0.05")) {
		t.Fatalf("unexpected table %v", rates)
	}
	if _, err := ParseRateTable("standard"); err == nil {
		t.Fatal("expected error for entry without rate")
	}
	if _, err := ParseRateTable("standard=-0.1"); err == nil {
		t.Fatal("expected error for negative rate")
	}
}
