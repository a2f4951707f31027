// Package money provides the fixed-precision decimal types used for every
// order-affecting value in the engine (prices, quantities, notionals). R and
// PnL-percentage values stay float64 elsewhere, matching the data model.
package money

import (
	"github.com/shopspring/decimal"
)

// Decimal is re-exported so callers only import this package for the money
// types used across the domain model.
type Decimal = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// FromFloat builds a Decimal from a float64 (config knobs, indicator output).
func FromFloat(f float64) Decimal { return decimal.NewFromFloat(f) }

// FromString parses an exchange-supplied canonical decimal string.
func FromString(s string) (Decimal, error) { return decimal.NewFromString(s) }

// SnapToStep rounds x down to the nearest multiple of step (LOT_SIZE /
// PRICE_FILTER semantics). A non-positive step is a no-op.
func SnapToStep(x, step Decimal) Decimal {
	if step.Sign() <= 0 {
		return x
	}
	n := x.Div(step).Floor()
	if n.Sign() <= 0 {
		return Zero
	}
	return n.Mul(step)
}

// BpsBetween returns (a-b)/mid*10000, the basis-point distance used for
// spread and slippage gates. mid must be positive.
func BpsBetween(a, b, mid Decimal) float64 {
	if mid.Sign() <= 0 {
		return 0
	}
	diff := a.Sub(b)
	return diff.Div(mid).Mul(decimal.NewFromInt(10000)).InexactFloat64()
}

// Abs returns the absolute value.
func Abs(x Decimal) Decimal { return x.Abs() }
