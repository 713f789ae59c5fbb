// Package fixed holds the fixed-point helpers used for every price, amount
// and value in the strategy. All results are quantized to Places fractional
// digits with round-half-to-even.
package fixed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept after every operation.
const Places int32 = 8

// ErrDivisionByZero is returned by Div when the divisor is zero.
var ErrDivisionByZero = errors.New("fixed: division by zero")

var (
	// Unit is the smallest representable step, 1e-8.
	Unit = decimal.New(1, -Places)
	two  = decimal.NewFromInt(2)
)

// Quantize rounds d to Places digits, ties to even.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Places)
}

// Floor truncates d toward zero at Places digits.
func Floor(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Places)
}

// Mul returns a × b quantized.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Quantize(a.Mul(b))
}

// Div returns a / b rounded half-to-even at Places digits. The quotient is
// computed exactly from the truncated quotient and its remainder, so there
// is no intermediate rounding step.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, r := a.QuoRem(b, Places)
	if r.IsZero() {
		return q, nil
	}

	// r carries the sign of a; compare |2r| against |b| scaled to one unit.
	half := r.Abs().Mul(two).Cmp(b.Abs().Mul(Unit))
	step := Unit
	if a.Sign()*b.Sign() < 0 {
		step = Unit.Neg()
	}
	switch {
	case half > 0:
		q = q.Add(step)
	case half == 0 && isOddLastDigit(q):
		q = q.Add(step)
	}
	return q, nil
}

// MustDiv is Div for divisors known to be non-zero.
func MustDiv(a, b decimal.Decimal) decimal.Decimal {
	q, err := Div(a, b)
	if err != nil {
		panic(err)
	}
	return q
}

// Pow returns base^n with quantization after every multiplication. n < 0 is
// treated as 0.
func Pow(base decimal.Decimal, n int) decimal.Decimal {
	out := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		out = Mul(out, base)
	}
	return out
}

// Sum adds the given values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Parse reads a decimal string and quantizes it. Empty input is an error.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("fixed: empty decimal")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return Quantize(d), nil
}

// MustParse is Parse for literals.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Positive reports whether d > 0.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

func isOddLastDigit(q decimal.Decimal) bool {
	scaled := q.Shift(Places).Abs().BigInt()
	return scaled.Bit(0) == 1
}
