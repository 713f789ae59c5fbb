package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/ladder"
)

// FilterOwn returns the orders whose id is in known, in their original
// order. The input slice is never modified.
func FilterOwn(open []domain.Order, known map[string]struct{}) []domain.Order {
	out := make([]domain.Order, 0, len(open))
	for _, o := range open {
		if _, ok := known[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

// consumption is the part of one tracked order that filled since the last
// pass.
type consumption struct {
	index   int
	order   domain.Order
	amount  decimal.Decimal
	eventID string
}

// diff replaces the ladder with the fetched view and returns what was
// consumed. Fake orders are carried over. A safety order missing from the
// fetch has filled, which means the market left the range on that edge.
func (e *Engine) diff(own []domain.Order) ([]consumption, []Edge, error) {
	fee := e.params.FeeCoef
	byID := make(map[string]domain.Order, len(own))
	for _, o := range own {
		byID[o.ID] = o.WithAmount(o.Amount, fee)
	}

	var edges []Edge
	if e.safetyBuy != nil {
		if o, ok := byID[e.safetyBuy.ID]; ok {
			e.safetyBuy = &o
		} else {
			e.emit(domain.EventConsumed, *e.safetyBuy, e.safetyBuy.Amount)
			e.safetyBuy = nil
			edges = append(edges, EdgeBottom)
		}
	}
	if e.safetySell != nil {
		if o, ok := byID[e.safetySell.ID]; ok {
			e.safetySell = &o
		} else {
			e.emit(domain.EventConsumed, *e.safetySell, e.safetySell.Amount)
			e.safetySell = nil
			edges = append(edges, EdgeTop)
		}
	}

	fetched := e.lad.CloneBounds()
	for i := 0; i < e.lad.Len(); i++ {
		for _, o := range e.lad.At(i).Orders(domain.SideBuy) {
			e.carry(fetched.At(i), o, byID)
		}
		for _, o := range e.lad.At(i).Orders(domain.SideSell) {
			e.carry(fetched.At(i), o, byID)
		}
	}

	var out []consumption
	for i := 0; i < e.lad.Len(); i++ {
		before, after := e.lad.At(i), fetched.At(i)
		if before.Equal(after) {
			continue
		}
		for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
			for _, o := range before.Orders(side) {
				if o.IsFake() {
					continue
				}
				left := decimal.Zero
				if cur, ok := byID[o.ID]; ok {
					left = cur.Amount
				}
				c := o.Amount.Sub(left)
				if c.Sign() < 0 {
					return nil, nil, domain.NewInvariantError("remaining_not_above_placed",
						"order %s grew from %s to %s", o.ID, o.Amount, left)
				}
				if c.IsZero() {
					continue
				}
				out = append(out, consumption{
					index:   i,
					order:   o,
					amount:  c,
					eventID: fmt.Sprintf("%s@%s", o.ID, left),
				})
				e.emit(domain.EventConsumed, o, c)
			}
		}
	}
	e.lad = fetched
	return out, edges, nil
}

// carry copies o into its fetched interval: fakes as they are, real orders
// at the fetched remaining amount, filled orders not at all.
func (e *Engine) carry(dst *ladder.Interval, o domain.Order, byID map[string]domain.Order) {
	if o.IsFake() {
		dst.Insert(o)
		return
	}
	if cur, ok := byID[o.ID]; ok {
		if !cur.Price.Equal(o.Price) {
			// The venue never reprices a resting order; keep ours.
			cur.Price = o.Price
			cur = cur.WithAmount(cur.Amount, e.params.FeeCoef)
		}
		dst.Insert(cur)
	}
}
