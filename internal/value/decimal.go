package value

import (
	"fmt"
	"math/big"
)

// Decimal is an arbitrary-precision decimal value, represented internally as
// a math/big.Rat. This mirrors the teacher's floater package, which treats
// math/big.Rat/big.Float as the engine's lossless numeric representation and
// provides nil-safe Cmp and half-to-even RoundRat helpers; Decimal adapts
// both to a closed value type suitable for carrying a source engine's
// DECIMAL/NUMERIC columns without loss of precision across a heterogeneous
// sink (the reason this type exists at all: float64 would silently round
// monetary values differently per sink dialect).
type Decimal struct {
	rat *big.Rat
}

// NewDecimal builds a Decimal from a numerator/denominator pair.
func NewDecimal(num, denom int64) Decimal {
	return Decimal{rat: big.NewRat(num, denom)}
}

// ParseDecimal parses a base-10 decimal or rational string (e.g. "12.340" or
// "37/10") into a Decimal.
func ParseDecimal(s string) (Decimal, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, fmt.Errorf(`value: invalid decimal: %q`, s)
	}
	return Decimal{rat: r}, nil
}

// Cmp behaves like floater.Cmp, generalized from *big.Float to *big.Rat:
// nil is treated as less than any non-nil value, and equal to itself.
func (d Decimal) Cmp(other Decimal) int {
	switch {
	case d.rat == other.rat:
		return 0
	case d.rat == nil:
		return -1
	case other.rat == nil:
		return 1
	default:
		return d.rat.Cmp(other.rat)
	}
}

// Round returns a copy of d rounded to prec decimal places, using
// half-to-even rounding -- the same semantics as floater.RoundRat, adapted
// to operate on Decimal directly instead of threading target/fractional
// accumulators through the caller.
func (d Decimal) Round(prec int) Decimal {
	if d.rat == nil {
		return d
	}
	return Decimal{rat: roundRat(new(big.Rat), d.rat, prec)}
}

// String renders the decimal using standard fixed-point notation at the
// precision implied by the underlying rational's exact representation.
// A value with no finite decimal expansion (e.g. 1/3) renders as
// "num/denom".
func (d Decimal) String() string {
	if d.rat == nil {
		return `0`
	}
	if n, exact := d.rat.FloatPrec(); exact {
		return d.rat.FloatString(n)
	}
	return d.rat.RatString()
}

// FloatString renders with exactly prec digits after the decimal point,
// using half-to-even rounding first.
func (d Decimal) FloatString(prec int) string {
	if d.rat == nil {
		return `0`
	}
	return roundRat(new(big.Rat), d.rat, prec).FloatString(prec)
}

// roundRat rounds rat to prec decimal places (half-to-even), assigning into
// target (or a new big.Rat, if target is nil). Negative prec rounds to the
// left of the decimal point. This is a trimmed form of the teacher's
// floater.RoundRatToUnitsFractional: we only need the rounded total, never
// the separate fractional remainder the exporter's alignment logic used.
func roundRat(target, rat *big.Rat, prec int) *big.Rat {
	if rat == nil {
		return nil
	}
	if target == nil {
		target = new(big.Rat)
	}
	if prec >= 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(prec)), nil)
		scaleRat := new(big.Rat).SetInt(scale)
		scaled := new(big.Rat).Mul(rat, scaleRat)
		rounded := roundHalfToEven(scaled)
		return target.Quo(new(big.Rat).SetInt(rounded), scaleRat)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-prec)), nil)
	scaleRat := new(big.Rat).SetInt(scale)
	scaled := new(big.Rat).Quo(rat, scaleRat)
	rounded := roundHalfToEven(scaled)
	return target.Mul(new(big.Rat).SetInt(rounded), scaleRat)
}

// roundHalfToEven rounds a big.Rat to the nearest integer, breaking ties
// towards the even integer.
func roundHalfToEven(r *big.Rat) *big.Int {
	num, denom := r.Num(), r.Denom()
	quo, rem := new(big.Int).QuoRem(num, denom, new(big.Int))
	if rem.Sign() == 0 {
		return quo
	}

	twiceRem := new(big.Int).Mul(rem, big.NewInt(2))
	twiceRem.Abs(twiceRem)
	cmp := twiceRem.Cmp(denom)

	roundAwayFromZero := func() *big.Int {
		if num.Sign() < 0 {
			return quo.Sub(quo, big.NewInt(1))
		}
		return quo.Add(quo, big.NewInt(1))
	}

	switch {
	case cmp < 0:
		return quo
	case cmp > 0:
		return roundAwayFromZero()
	default: // exactly half: round to even
		if new(big.Int).Mod(quo, big.NewInt(2)).Sign() == 0 {
			return quo
		}
		return roundAwayFromZero()
	}
}
