// Package loyalty converts between loyalty points and currency amounts. The
// functions are pure; customer balances are never read or mutated here.
package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rounding"
)

// PointsToAmount converts points into a currency amount at the given
// exchange rate and rounds the result per the currency settings.
func PointsToAmount(points int64, rate decimal.Decimal, decimals int32, policy rounding.Policy, midpoint rounding.Midpoint) (decimal.Decimal, error) {
	if points <= 0 || rate.Sign() <= 0 {
		return decimal.Zero, nil
	}
	return rounding.Round(decimal.NewFromInt(points).Mul(rate), decimals, policy, midpoint)
}

// AmountToPoints converts a currency amount into points, truncating toward
// zero so a customer is never granted more value than was paid.
func AmountToPoints(amount, rate decimal.Decimal) int64 {
	if amount.Sign() <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return amount.Div(rate).IntPart()
}

// CheckMinimumUsage reports whether the requested points meet the store's
// minimum-usage threshold. A threshold of zero always permits use.
func CheckMinimumUsage(points, minimum int64) bool {
	if minimum <= 0 {
		return true
	}
	return points >= minimum
}
