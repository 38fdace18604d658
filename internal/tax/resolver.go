package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StaticResolver serves rates from an in-memory table keyed by category. An
// empty category falls back to the default rate. Location is ignored; static
// tables are location-agnostic by definition.
type StaticResolver struct {
	Rates       map[string]decimal.Decimal
	DefaultRate decimal.Decimal
}

// Rate implements RateResolver.
func (r StaticResolver) Rate(_ context.Context, category, _ string) (decimal.Decimal, error) {
	if rate, ok := r.Rates[strings.ToLower(strings.TrimSpace(category))]; ok {
		return rate, nil
	}
	return r.DefaultRate, nil
}

// ParseRateTable reads a "category=rate,category=rate" configuration string
// into a rate table. Rates are fractions, e.g. 0.11 for 11%.
func ParseRateTable(csv string) (map[string]decimal.Decimal, error) {
	rates := map[string]decimal.Decimal{}
	if strings.TrimSpace(csv) == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(csv, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid tax rate entry %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid tax rate %q: %w", pair, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("negative tax rate %q", pair)
		}
		rates[strings.ToLower(strings.TrimSpace(parts[0]))] = rate
	}
	return rates, nil
}
