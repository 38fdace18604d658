// Package rounding implements the monetary rounding policies used by the
// pricing engine, including the cash-rounding conventions for currencies
// whose smallest physical denomination is larger than their smallest
// representable unit.
package rounding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedPolicy is returned when a configured rounding policy is not
// recognised. This is a configuration error, not a per-request condition.
var ErrUnsupportedPolicy = errors.New("unsupported rounding policy")

// Policy identifies a rounding convention.
type Policy string

const (
	// PolicyNearest rounds to the currency's decimal places with no cash
	// adjustment. This is the default.
	PolicyNearest Policy = "NEAREST"
	// PolicyCashUp005 snaps the sub-unit remainder up to the next 0.05 interval.
	PolicyCashUp005 Policy = "CASH_UP_005"
	// PolicyCashDown005 snaps the sub-unit remainder down to the previous 0.05 interval.
	PolicyCashDown005 Policy = "CASH_DOWN_005"
	// PolicyCashUp01 snaps the sub-unit remainder up to the next 0.10 interval.
	PolicyCashUp01 Policy = "CASH_UP_01"
	// PolicyCashDown01 snaps the sub-unit remainder down to the previous 0.10 interval.
	PolicyCashDown01 Policy = "CASH_DOWN_01"
	// PolicyCash05 snaps to the nearest 0.50 interval.
	PolicyCash05 Policy = "CASH_05"
	// PolicyCash1 snaps to the nearest whole unit.
	PolicyCash1 Policy = "CASH_1"
	// PolicyCash1Up always rounds up to the next whole unit when any
	// positive remainder exists.
	PolicyCash1Up Policy = "CASH_1_UP"
)

// Midpoint selects how exact halves are resolved by the baseline rounding.
type Midpoint string

const (
	// MidpointBankers rounds halves to the nearest even digit.
	MidpointBankers Midpoint = "BANKERS"
	// MidpointHalfUp rounds halves away from zero.
	MidpointHalfUp Midpoint = "HALF_UP"
)

var (
	five    = decimal.NewFromInt(5)
	ten     = decimal.NewFromInt(10)
	hundred = decimal.NewFromInt(100)
	d25     = decimal.NewFromInt(25)
	d50     = decimal.NewFromInt(50)
	d75     = decimal.NewFromInt(75)
)

// adjuster returns the cash adjustment, expressed in hundredths of the base
// unit, for the fractional remainder of an already baseline-rounded value.
// The remainder frac is (value - trunc(value)) * 10 and is never an exact
// integer when an adjuster runs.
type adjuster func(frac decimal.Decimal) decimal.Decimal

var adjusters = map[Policy]adjuster{
	PolicyCashUp005:   adjustUp005,
	PolicyCashDown005: adjustDown005,
	PolicyCashUp01:    adjustUp01,
	PolicyCashDown01:  adjustDown01,
	PolicyCash05:      adjust05,
	PolicyCash1:       adjust1,
	PolicyCash1Up:     adjust1Up,
}

// Round applies the baseline decimal rounding and, for cash policies, snaps
// the result to the policy's denomination interval. Negative values are
// rounded symmetrically: the adjustment is computed on the absolute value and
// the sign restored afterwards.
func Round(value decimal.Decimal, decimals int32, policy Policy, midpoint Midpoint) (decimal.Decimal, error) {
	rounded := roundBaseline(value, decimals, midpoint)
	if policy == PolicyNearest || policy == "" {
		return rounded, nil
	}
	adjust, ok := adjusters[policy]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, policy)
	}

	negative := rounded.IsNegative()
	abs := rounded.Abs()

	// frac carries the first sub-unit digit before the point and the rest
	// after it, e.g. 10.53 -> 5.3. An integral frac means the second
	// sub-unit digit is zero and no cash adjustment is needed.
	frac := abs.Sub(abs.Truncate(0)).Mul(ten)
	if frac.Equal(frac.Truncate(0)) {
		return rounded, nil
	}

	abs = abs.Add(adjust(frac).Div(hundred))
	if negative {
		abs = abs.Neg()
	}
	return abs, nil
}

// MustParsePolicy panics on unknown policy names. Intended for tests.
func MustParsePolicy(name string) Policy {
	p, err := ParsePolicy(name)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch normalize(name) {
	case "", "NEAREST", "ROUNDING_001":
		return PolicyNearest, nil
	case "CASH_UP_005", "ROUNDING_005_UP":
		return PolicyCashUp005, nil
	case "CASH_DOWN_005", "ROUNDING_005_DOWN":
		return PolicyCashDown005, nil
	case "CASH_UP_01", "ROUNDING_01_UP":
		return PolicyCashUp01, nil
	case "CASH_DOWN_01", "ROUNDING_01_DOWN":
		return PolicyCashDown01, nil
	case "CASH_05", "ROUNDING_05":
		return PolicyCash05, nil
	case "CASH_1", "ROUNDING_1":
		return PolicyCash1, nil
	case "CASH_1_UP", "ROUNDING_1_UP":
		return PolicyCash1Up, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPolicy, name)
	}
}

// ParseMidpoint maps a configuration string onto a Midpoint mode.
func ParseMidpoint(name string) (Midpoint, error) {
	switch normalize(name) {
	case "", "BANKERS", "HALF_EVEN":
		return MidpointBankers, nil
	case "HALF_UP", "AWAY_FROM_ZERO":
		return MidpointHalfUp, nil
	default:
		return "", fmt.Errorf("unsupported midpoint mode: %q", name)
	}
}

func normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

func roundBaseline(value decimal.Decimal, decimals int32, midpoint Midpoint) decimal.Decimal {
	if midpoint == MidpointHalfUp {
		return value.Round(decimals)
	}
	return value.RoundBank(decimals)
}

// subDigit extracts the second sub-unit digit carried by frac, e.g. 5.3 -> 3.
func subDigit(frac decimal.Decimal) decimal.Decimal {
	return frac.Sub(frac.Truncate(0)).Mul(ten)
}

func adjustUp005(frac decimal.Decimal) decimal.Decimal {
	rem := subDigit(frac).Mod(five)
	if rem.IsZero() {
		return decimal.Zero
	}
	return five.Sub(rem)
}

func adjustDown005(frac decimal.Decimal) decimal.Decimal {
	rem := subDigit(frac).Mod(five)
	return rem.Neg()
}

func adjustUp01(frac decimal.Decimal) decimal.Decimal {
	digit := subDigit(frac)
	if digit.LessThan(five) {
		return digit.Neg()
	}
	return ten.Sub(digit)
}

func adjustDown01(frac decimal.Decimal) decimal.Decimal {
	digit := subDigit(frac)
	// An exact half flips sign instead of rounding up.
	if digit.Equal(five) {
		return five.Neg()
	}
	if digit.LessThan(five) {
		return digit.Neg()
	}
	return ten.Sub(digit)
}

func adjust05(frac decimal.Decimal) decimal.Decimal {
	rem := frac.Mul(ten)
	switch {
	case rem.LessThan(d25):
		return rem.Neg()
	case rem.LessThan(d75):
		return d50.Sub(rem)
	default:
		return hundred.Sub(rem)
	}
}

func adjust1(frac decimal.Decimal) decimal.Decimal {
	rem := frac.Mul(ten)
	if rem.LessThan(d50) {
		return rem.Neg()
	}
	return hundred.Sub(rem)
}

func adjust1Up(frac decimal.Decimal) decimal.Decimal {
	rem := frac.Mul(ten)
	return hundred.Sub(rem)
}
