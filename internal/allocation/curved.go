package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Curved grows amounts exponentially away from the middle of the ladder:
// buys toward the bottom, sells toward the top. The coefficient is the
// largest value for which min × coef^middle stays within max.
type Curved struct {
	min, max decimal.Decimal
	middle   int
	coef     decimal.Decimal
	buys     []decimal.Decimal
	sells    []decimal.Decimal
}

// NewCurved returns a Curved policy over a ladder of count intervals.
func NewCurved(minAmount, maxAmount decimal.Decimal, count int) (*Curved, error) {
	if err := checkRange(minAmount, maxAmount, count); err != nil {
		return nil, err
	}
	c := &Curved{
		min:    fixed.Quantize(minAmount),
		max:    fixed.Quantize(maxAmount),
		middle: count / 2,
		buys:   make([]decimal.Decimal, count),
		sells:  make([]decimal.Decimal, count),
	}
	c.coef = solveCoef(c.min, c.max, c.middle)

	for i := range c.buys {
		c.buys[i], c.sells[i] = c.min, c.min
	}
	v := c.min
	for i := c.middle - 1; i >= 0; i-- {
		v = fixed.Min(fixed.Mul(v, c.coef), c.max)
		c.buys[i] = v
	}
	v = c.min
	for i := c.middle + 1; i < count; i++ {
		v = fixed.Min(fixed.Mul(v, c.coef), c.max)
		c.sells[i] = v
	}
	return c, nil
}

// solveCoef bisects coef in [1, max/min] for min × coef^n <= max.
func solveCoef(minAmount, maxAmount decimal.Decimal, n int) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if n < 1 || minAmount.Equal(maxAmount) {
		return one
	}
	lo := one
	hi := fixed.MustDiv(maxAmount, minAmount)
	two := decimal.NewFromInt(2)
	for hi.Sub(lo).GreaterThan(fixed.Unit) {
		mid := fixed.MustDiv(lo.Add(hi), two)
		if withinBound(minAmount, mid, n, maxAmount) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func withinBound(start, coef decimal.Decimal, n int, limit decimal.Decimal) bool {
	v := start
	for i := 0; i < n; i++ {
		v = fixed.Mul(v, coef)
		if v.GreaterThan(limit) {
			return false
		}
	}
	return true
}

func (c *Curved) Kind() Kind { return KindCurved }

// Coef is the solved growth coefficient.
func (c *Curved) Coef() decimal.Decimal { return c.coef }

func (c *Curved) Amount(index int, side domain.Side) decimal.Decimal {
	if index < 0 || index >= len(c.buys) {
		return c.min
	}
	if side == domain.SideBuy {
		return c.buys[index]
	}
	return c.sells[index]
}

func (c *Curved) BuyToOpen(index int, _ decimal.Decimal) decimal.Decimal {
	return c.Amount(index, domain.SideBuy)
}

func (c *Curved) SellToOpen(index int, _ decimal.Decimal) decimal.Decimal {
	return c.Amount(index, domain.SideSell)
}
