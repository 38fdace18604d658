// Package tax computes tax amounts for monetary bases. Category-to-rate
// resolution is delegated to an injected resolver; this package owns the
// combination and display-mode arithmetic.
package tax

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rounding"
)

// ErrResolver wraps failures of the injected rate resolver. The calculation
// that triggered the lookup aborts; no partial result is produced.
var ErrResolver = errors.New("tax rate resolver failed")

// DisplayMode declares whether prices shown to the customer already include
// tax.
type DisplayMode string

const (
	// DisplayExcluding treats base amounts as tax-exclusive; tax is added
	// on top of them.
	DisplayExcluding DisplayMode = "EXCLUDING_TAX"
	// DisplayIncluding treats displayed amounts as tax-inclusive; the tax
	// component is backed out rather than added.
	DisplayIncluding DisplayMode = "INCLUDING_TAX"
)

// ParseDisplayMode maps a configuration string onto a DisplayMode.
func ParseDisplayMode(name string) (DisplayMode, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "EXCLUDING_TAX", "EXCLUDING":
		return DisplayExcluding, nil
	case "INCLUDING_TAX", "INCLUDING":
		return DisplayIncluding, nil
	default:
		return "", fmt.Errorf("unsupported tax display mode: %q", name)
	}
}

// RateResolver resolves the tax rate for a category and customer location.
// Implementations are external collaborators; the engine never derives rates
// itself.
type RateResolver interface {
	Rate(ctx context.Context, category, location string) (decimal.Decimal, error)
}

// Line is one taxable base amount with its category. Bases are tax-exclusive;
// the display mode only affects how the result is split, never the total.
type Line struct {
	Base     decimal.Decimal
	Category string
}

// RateLine is the per-rate slice of the tax breakdown.
type RateLine struct {
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
	Tax  decimal.Decimal `json:"tax"`
}

// Result carries the total tax, the base adjusted for display mode and the
// per-rate breakdown. The breakdown sums exactly to the total.
type Result struct {
	Tax         decimal.Decimal
	DisplayBase decimal.Decimal
	Breakdown   []RateLine
}

// Calculator combines per-line tax amounts into a single rounded figure.
type Calculator struct {
	Resolver RateResolver
	Decimals int32
	Policy   rounding.Policy
	Midpoint rounding.Midpoint
}

// Compute resolves the rate for every line, aggregates tax per rate and
// rounds each per-rate figure once at the end. Rounding never happens per
// line, so cumulative drift cannot exceed one minor unit per distinct rate.
//
// When exempt is true the tax is zero and the bases pass through unchanged
// regardless of display mode.
func (c *Calculator) Compute(ctx context.Context, lines []Line, exempt bool, mode DisplayMode, location string) (Result, error) {
	baseSum := decimal.Zero
	for _, line := range lines {
		baseSum = baseSum.Add(line.Base)
	}
	if exempt || len(lines) == 0 {
		return Result{Tax: decimal.Zero, DisplayBase: baseSum}, nil
	}
	if c.Resolver == nil {
		return Result{}, fmt.Errorf("%w: no resolver configured", ErrResolver)
	}

	// Aggregate unrounded tax per distinct rate.
	type bucket struct {
		rate decimal.Decimal
		base decimal.Decimal
		tax  decimal.Decimal
	}
	buckets := map[string]*bucket{}
	for _, line := range lines {
		rate, err := c.Resolver.Rate(ctx, line.Category, location)
		if err != nil {
			return Result{}, fmt.Errorf("%w: category %q: %v", ErrResolver, line.Category, err)
		}
		if rate.Sign() <= 0 {
			continue
		}
		key := rate.String()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{rate: rate}
			buckets[key] = b
		}
		b.base = b.base.Add(line.Base)
		b.tax = b.tax.Add(line.Base.Mul(rate))
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	total := decimal.Zero
	breakdown := make([]RateLine, 0, len(buckets))
	for _, key := range keys {
		b := buckets[key]
		taxRounded, err := rounding.Round(b.tax, c.Decimals, c.Policy, c.Midpoint)
		if err != nil {
			return Result{}, err
		}
		breakdown = append(breakdown, RateLine{Rate: b.rate, Base: b.base, Tax: taxRounded})
		total = total.Add(taxRounded)
	}

	display := baseSum
	if mode == DisplayIncluding {
		// Displayed figures carry the tax inside. The grand total is
		// display-mode independent: backing the tax out of the gross
		// display base reproduces exactly the tax computed above, since
		// gross - gross/(1+r) == base*r for gross = base*(1+r).
		display = baseSum.Add(total)
	}
	return Result{Tax: total, DisplayBase: display, Breakdown: breakdown}, nil
}
