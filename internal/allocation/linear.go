package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Linear grows the sell amount linearly from min at start to max at the
// last interval. Buys, and every interval below start, hold min.
type Linear struct {
	min, max decimal.Decimal
	start    int
	count    int
	coef     decimal.Decimal
}

// NewLinear returns a Linear policy over a ladder of count intervals.
func NewLinear(minAmount, maxAmount decimal.Decimal, start, count int) (*Linear, error) {
	if err := checkRange(minAmount, maxAmount, count); err != nil {
		return nil, err
	}
	if start < 0 || start >= count {
		return nil, domain.NewConfigurationError("allocation.start_index", "%d outside [0, %d)", start, count)
	}
	coef, err := fixed.Div(maxAmount.Sub(minAmount), decimal.NewFromInt(int64(count-start)))
	if err != nil {
		return nil, err
	}
	return &Linear{
		min:   fixed.Quantize(minAmount),
		max:   fixed.Quantize(maxAmount),
		start: start,
		count: count,
		coef:  coef,
	}, nil
}

func (l *Linear) Kind() Kind { return KindLinear }

func (l *Linear) Amount(index int, side domain.Side) decimal.Decimal {
	if side == domain.SideBuy || index < l.start {
		return l.min
	}
	v := l.min.Add(fixed.Mul(l.coef, decimal.NewFromInt(int64(index-l.start))))
	return clamp(v, l.min, l.max)
}

func (l *Linear) BuyToOpen(index int, _ decimal.Decimal) decimal.Decimal {
	return l.Amount(index, domain.SideBuy)
}

func (l *Linear) SellToOpen(index int, _ decimal.Decimal) decimal.Decimal {
	return l.Amount(index, domain.SideSell)
}
