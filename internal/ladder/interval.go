// Package ladder models the price range traded by the strategy as an ordered
// set of half-open intervals, each holding the strategy's resting orders
// whose price falls inside it.
package ladder

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// ErrInvalidSplit is returned when an amount cannot be split into the
// requested number of orders of at least the minimum size.
var ErrInvalidSplit = errors.New("ladder: amount too small for split")

// OrderRequest is a price/amount pair to be submitted to the venue.
type OrderRequest struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Interval is one price bucket [Bottom, Top). Both order lists are kept in
// ascending price order.
type Interval struct {
	bottom decimal.Decimal
	top    decimal.Decimal
	buys   []domain.Order
	sells  []domain.Order
}

// NewInterval creates an empty interval.
func NewInterval(bottom, top decimal.Decimal) *Interval {
	return &Interval{bottom: bottom, top: top}
}

func (iv *Interval) Bottom() decimal.Decimal { return iv.bottom }
func (iv *Interval) Top() decimal.Decimal    { return iv.top }

// Contains reports whether price lies in [Bottom, Top).
func (iv *Interval) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(iv.bottom) && price.LessThan(iv.top)
}

// InsertBuy adds a buy order keeping ascending price order.
func (iv *Interval) InsertBuy(o domain.Order) {
	iv.buys = insertByPrice(iv.buys, o)
}

// InsertSell adds a sell order keeping ascending price order.
func (iv *Interval) InsertSell(o domain.Order) {
	iv.sells = insertByPrice(iv.sells, o)
}

// Insert routes o to the list of its side.
func (iv *Interval) Insert(o domain.Order) {
	if o.Side == domain.SideBuy {
		iv.InsertBuy(o)
		return
	}
	iv.InsertSell(o)
}

func insertByPrice(list []domain.Order, o domain.Order) []domain.Order {
	pos := len(list)
	for i, cur := range list {
		if cur.Price.GreaterThan(o.Price) {
			pos = i
			break
		}
	}
	list = append(list, domain.Order{})
	copy(list[pos+1:], list[pos:])
	list[pos] = o
	return list
}

// Buys returns a copy of the buy orders, lowest price first.
func (iv *Interval) Buys() []domain.Order { return append([]domain.Order(nil), iv.buys...) }

// Sells returns a copy of the sell orders, lowest price first.
func (iv *Interval) Sells() []domain.Order { return append([]domain.Order(nil), iv.sells...) }

// Orders returns the orders of one side.
func (iv *Interval) Orders(side domain.Side) []domain.Order {
	if side == domain.SideBuy {
		return iv.Buys()
	}
	return iv.Sells()
}

// BuyAmount is the summed remaining amount of the buy orders.
func (iv *Interval) BuyAmount() decimal.Decimal { return sumAmounts(iv.buys) }

// SellAmount is the summed remaining amount of the sell orders.
func (iv *Interval) SellAmount() decimal.Decimal { return sumAmounts(iv.sells) }

// Amount returns BuyAmount or SellAmount.
func (iv *Interval) Amount(side domain.Side) decimal.Decimal {
	if side == domain.SideBuy {
		return iv.BuyAmount()
	}
	return iv.SellAmount()
}

func sumAmounts(list []domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range list {
		total = total.Add(o.Amount)
	}
	return total
}

// HasReal reports whether the side holds at least one venue order.
func (iv *Interval) HasReal(side domain.Side) bool {
	list := iv.sells
	if side == domain.SideBuy {
		list = iv.buys
	}
	for _, o := range list {
		if !o.IsFake() {
			return true
		}
	}
	return false
}

// HasFake reports whether the side holds a boundary placeholder.
func (iv *Interval) HasFake(side domain.Side) bool {
	list := iv.sells
	if side == domain.SideBuy {
		list = iv.buys
	}
	for _, o := range list {
		if o.IsFake() {
			return true
		}
	}
	return false
}

// LowestBuy is the buy order closest to the range bottom.
func (iv *Interval) LowestBuy() (domain.Order, bool) { return front(iv.buys) }

// HighestBuy is the buy order closest to the spread.
func (iv *Interval) HighestBuy() (domain.Order, bool) { return back(iv.buys) }

// LowestSell is the sell order closest to the spread.
func (iv *Interval) LowestSell() (domain.Order, bool) { return front(iv.sells) }

// HighestSell is the sell order closest to the range top.
func (iv *Interval) HighestSell() (domain.Order, bool) { return back(iv.sells) }

func front(list []domain.Order) (domain.Order, bool) {
	if len(list) == 0 {
		return domain.Order{}, false
	}
	return list[0], true
}

func back(list []domain.Order) (domain.Order, bool) {
	if len(list) == 0 {
		return domain.Order{}, false
	}
	return list[len(list)-1], true
}

// RemoveOrder drops the order with the given id from either side.
func (iv *Interval) RemoveOrder(id string) (domain.Order, bool) {
	var removed domain.Order
	var found bool
	iv.buys, removed, found = without(iv.buys, id)
	if found {
		return removed, true
	}
	iv.sells, removed, found = without(iv.sells, id)
	return removed, found
}

func without(list []domain.Order, id string) ([]domain.Order, domain.Order, bool) {
	var removed domain.Order
	found := false
	out := make([]domain.Order, 0, len(list))
	for _, o := range list {
		if !found && o.ID == id {
			removed, found = o, true
			continue
		}
		out = append(out, o)
	}
	return out, removed, found
}

// RemoveFakes drops the boundary placeholders of one side.
func (iv *Interval) RemoveFakes(side domain.Side) {
	keep := func(list []domain.Order) []domain.Order {
		out := make([]domain.Order, 0, len(list))
		for _, o := range list {
			if !o.IsFake() {
				out = append(out, o)
			}
		}
		return out
	}
	if side == domain.SideBuy {
		iv.buys = keep(iv.buys)
		return
	}
	iv.sells = keep(iv.sells)
}

// Empty reports whether both order lists are empty.
func (iv *Interval) Empty() bool {
	return len(iv.buys) == 0 && len(iv.sells) == 0
}

// Equal compares bounds and both order lists.
func (iv *Interval) Equal(other *Interval) bool {
	if other == nil {
		return false
	}
	if !iv.bottom.Equal(other.bottom) || !iv.top.Equal(other.top) {
		return false
	}
	return sameOrders(iv.buys, other.buys) && sameOrders(iv.sells, other.sells)
}

func sameOrders(a, b []domain.Order) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Same(b[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (iv *Interval) Clone() *Interval {
	return &Interval{
		bottom: iv.bottom,
		top:    iv.top,
		buys:   append([]domain.Order(nil), iv.buys...),
		sells:  append([]domain.Order(nil), iv.sells...),
	}
}

// CloneBounds returns an interval with the same bounds and no orders.
func (iv *Interval) CloneBounds() *Interval {
	return NewInterval(iv.bottom, iv.top)
}

// State serializes the interval.
func (iv *Interval) State() domain.IntervalState {
	return domain.IntervalState{
		Bottom: iv.bottom,
		Top:    iv.top,
		Buys:   iv.Buys(),
		Sells:  iv.Sells(),
	}
}

// GenerateOrdersByAmount splits total into count orders with random prices
// inside the interval. Every amount is at least minAmount and the amounts
// sum to total exactly: each of the first count-1 orders takes minAmount
// plus a random share between half and all of its even share of the
// remaining slack, and the last order takes the exact remainder.
func (iv *Interval) GenerateOrdersByAmount(total, minAmount decimal.Decimal, count int, rng *rand.Rand) ([]OrderRequest, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidSplit, count)
	}
	total = fixed.Quantize(total)
	floor := minAmount.Mul(decimal.NewFromInt(int64(count)))
	if total.LessThan(floor) {
		return nil, fmt.Errorf("%w: %s < %s x %d", ErrInvalidSplit, total, minAmount, count)
	}

	reqs := make([]OrderRequest, 0, count)
	assigned := decimal.Zero
	for k := 0; k < count-1; k++ {
		left := int64(count - k)
		slack := total.Sub(assigned).Sub(minAmount.Mul(decimal.NewFromInt(left)))
		share := fixed.Floor(slack.Div(decimal.NewFromInt(left)))
		factor := decimal.NewFromFloat(0.5 + 0.5*rng.Float64())
		amount := minAmount.Add(fixed.Floor(share.Mul(factor)))
		assigned = assigned.Add(amount)
		reqs = append(reqs, OrderRequest{Price: iv.randomPrice(rng), Amount: amount})
	}
	reqs = append(reqs, OrderRequest{Price: iv.randomPrice(rng), Amount: total.Sub(assigned)})

	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Price.LessThan(reqs[j].Price) })
	return reqs, nil
}

func (iv *Interval) randomPrice(rng *rand.Rand) decimal.Decimal {
	width := iv.top.Sub(iv.bottom)
	price := fixed.Floor(iv.bottom.Add(width.Mul(decimal.NewFromFloat(rng.Float64()))))
	if price.GreaterThanOrEqual(iv.top) {
		return iv.bottom
	}
	return price
}
