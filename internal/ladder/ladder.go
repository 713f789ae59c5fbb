package ladder

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// MinIntervals is the smallest ladder the strategy can run: it needs room
// for the spread plus a margin on both sides.
const MinIntervals = 6

// maxIntervals bounds generation so a coefficient barely above 1 cannot
// exhaust memory.
const maxIntervals = 100_000

// Ladder is the ordered, fixed-size sequence of intervals covering the
// configured range. Index 0 is the interval closest to the range bottom.
type Ladder struct {
	intervals []*Interval
}

// Generate builds the ladder for [bottom, top] with multiplicative step
// coef. Starting from bottom, each boundary is the previous one times coef,
// quantized. Every boundary not above top opens an interval whose top is
// the next boundary, so the last interval closes on the first boundary past
// top. Fewer than MinIntervals intervals is a configuration error.
func Generate(bottom, top, coef decimal.Decimal) (*Ladder, error) {
	switch {
	case !fixed.Positive(bottom):
		return nil, domain.NewConfigurationError("range_bot", "must be > 0, got %s", bottom)
	case bottom.GreaterThanOrEqual(top):
		return nil, domain.NewConfigurationError("range_top", "must be above range_bot (%s >= %s)", bottom, top)
	case coef.LessThanOrEqual(decimal.NewFromInt(1)):
		return nil, domain.NewConfigurationError("increment_coef", "must be > 1, got %s", coef)
	}

	bottom = fixed.Quantize(bottom)
	var intervals []*Interval
	cur := bottom
	for cur.LessThanOrEqual(top) {
		next := fixed.Mul(cur, coef)
		if !next.GreaterThan(cur) {
			return nil, domain.NewConfigurationError("increment_coef", "%s does not move %s at 8 decimals", coef, cur)
		}
		intervals = append(intervals, NewInterval(cur, next))
		if len(intervals) > maxIntervals {
			return nil, domain.NewConfigurationError("increment_coef", "more than %d intervals", maxIntervals)
		}
		cur = next
	}

	if len(intervals) < MinIntervals {
		return nil, domain.NewConfigurationError("increment_coef",
			"range %s-%s at %s gives %d intervals, need at least %d", bottom, top, coef, len(intervals), MinIntervals)
	}
	return &Ladder{intervals: intervals}, nil
}

// FromStates rebuilds a ladder from a snapshot, checking that intervals are
// contiguous and that every order sits inside its interval.
func FromStates(states []domain.IntervalState) (*Ladder, error) {
	l := &Ladder{intervals: make([]*Interval, 0, len(states))}
	for i, st := range states {
		if i > 0 && !states[i-1].Top.Equal(st.Bottom) {
			return nil, domain.NewInvariantError("contiguous_intervals", "interval %d starts at %s, previous ends at %s", i, st.Bottom, states[i-1].Top)
		}
		iv := NewInterval(st.Bottom, st.Top)
		for _, o := range st.Buys {
			if !iv.Contains(o.Price) {
				return nil, domain.NewInvariantError("order_in_interval", "buy %s at %s outside interval %d", o.ID, o.Price, i)
			}
			iv.InsertBuy(o)
		}
		for _, o := range st.Sells {
			if !iv.Contains(o.Price) {
				return nil, domain.NewInvariantError("order_in_interval", "sell %s at %s outside interval %d", o.ID, o.Price, i)
			}
			iv.InsertSell(o)
		}
		l.intervals = append(l.intervals, iv)
	}
	return l, nil
}

// Len is the number of intervals.
func (l *Ladder) Len() int { return len(l.intervals) }

// At returns interval i. It panics on an out-of-range index like a slice.
func (l *Ladder) At(i int) *Interval { return l.intervals[i] }

// Valid reports whether i is a ladder index.
func (l *Ladder) Valid(i int) bool { return i >= 0 && i < len(l.intervals) }

// Bottom is the lowest price covered by the ladder.
func (l *Ladder) Bottom() decimal.Decimal { return l.intervals[0].bottom }

// Top is the exclusive upper bound of the last interval.
func (l *Ladder) Top() decimal.Decimal { return l.intervals[len(l.intervals)-1].top }

// IndexOf returns the index of the interval containing price.
func (l *Ladder) IndexOf(price decimal.Decimal) (int, error) {
	i := sort.Search(len(l.intervals), func(i int) bool {
		return l.intervals[i].top.GreaterThan(price)
	})
	if i == len(l.intervals) || price.LessThan(l.intervals[i].bottom) {
		return -1, domain.NewInvariantError("price_in_ladder", "price %s outside %s-%s", price, l.Bottom(), l.Top())
	}
	return i, nil
}

// Place inserts o into the interval containing its price.
func (l *Ladder) Place(o domain.Order) (int, error) {
	i, err := l.IndexOf(o.Price)
	if err != nil {
		return -1, err
	}
	l.intervals[i].Insert(o)
	return i, nil
}

// FindOrder locates an order by id.
func (l *Ladder) FindOrder(id string) (int, domain.Order, bool) {
	for i, iv := range l.intervals {
		for _, o := range iv.buys {
			if o.ID == id {
				return i, o, true
			}
		}
		for _, o := range iv.sells {
			if o.ID == id {
				return i, o, true
			}
		}
	}
	return -1, domain.Order{}, false
}

// Indexes returns, ascending, the intervals holding real orders on side.
func (l *Ladder) Indexes(side domain.Side) []int {
	var out []int
	for i, iv := range l.intervals {
		if iv.HasReal(side) {
			out = append(out, i)
		}
	}
	return out
}

// BuyIndexes returns the intervals with live buy orders.
func (l *Ladder) BuyIndexes() []int { return l.Indexes(domain.SideBuy) }

// SellIndexes returns the intervals with live sell orders.
func (l *Ladder) SellIndexes() []int { return l.Indexes(domain.SideSell) }

// Orders returns every venue order held by the ladder.
func (l *Ladder) Orders() []domain.Order {
	var out []domain.Order
	for _, iv := range l.intervals {
		for _, o := range iv.buys {
			if !o.IsFake() {
				out = append(out, o)
			}
		}
		for _, o := range iv.sells {
			if !o.IsFake() {
				out = append(out, o)
			}
		}
	}
	return out
}

// Clone deep-copies the ladder.
func (l *Ladder) Clone() *Ladder {
	out := &Ladder{intervals: make([]*Interval, len(l.intervals))}
	for i, iv := range l.intervals {
		out.intervals[i] = iv.Clone()
	}
	return out
}

// CloneBounds copies the interval bounds without orders.
func (l *Ladder) CloneBounds() *Ladder {
	out := &Ladder{intervals: make([]*Interval, len(l.intervals))}
	for i, iv := range l.intervals {
		out.intervals[i] = iv.CloneBounds()
	}
	return out
}

// Bounds returns every interval boundary, Len()+1 values ascending.
func (l *Ladder) Bounds() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(l.intervals)+1)
	for _, iv := range l.intervals {
		out = append(out, iv.bottom)
	}
	if len(l.intervals) > 0 {
		out = append(out, l.Top())
	}
	return out
}

// SameBounds reports whether both ladders partition the range identically.
func (l *Ladder) SameBounds(other *Ladder) bool {
	if other == nil || len(l.intervals) != len(other.intervals) {
		return false
	}
	for i := range l.intervals {
		if !l.intervals[i].bottom.Equal(other.intervals[i].bottom) || !l.intervals[i].top.Equal(other.intervals[i].top) {
			return false
		}
	}
	return true
}

// States serializes every interval.
func (l *Ladder) States() []domain.IntervalState {
	out := make([]domain.IntervalState, len(l.intervals))
	for i, iv := range l.intervals {
		out[i] = iv.State()
	}
	return out
}
