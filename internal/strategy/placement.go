package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/allocation"
	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// target is an amount to open on one side, starting at index.
type target struct {
	index  int
	amount decimal.Decimal
}

// decide maps consumed amounts onto the opposite side of the spread: a buy
// filled at i re-opens as a sell at i+gap, a sell filled at j as a buy at
// j-gap. Targets outside the ladder are clamped to its edge and reported.
func (e *Engine) decide(consumed []consumption) (buys, sells []target, edges []Edge) {
	gap := e.params.SpreadGap
	last := e.lad.Len() - 1
	for _, c := range consumed {
		switch c.order.Side {
		case domain.SideBuy:
			e.rep.ConsumedBuy = e.rep.ConsumedBuy.Add(c.amount)
			j := c.index + gap
			if j > last {
				edges = appendEdge(edges, EdgeTop)
				j = last
			}
			sells = append(sells, target{index: j, amount: e.sellToOpen(j, c)})
		case domain.SideSell:
			e.rep.ConsumedSell = e.rep.ConsumedSell.Add(c.amount)
			i := c.index - gap
			if i < 0 {
				edges = appendEdge(edges, EdgeBottom)
				i = 0
			}
			buys = append(buys, target{index: i, amount: e.buyToOpen(i, c)})
		}
	}
	return buys, sells, edges
}

func appendEdge(edges []Edge, edge Edge) []Edge {
	for _, e := range edges {
		if e == edge {
			return edges
		}
	}
	return append(edges, edge)
}

func (e *Engine) sellToOpen(j int, c consumption) decimal.Decimal {
	if e.tracker == nil {
		return e.policy.SellToOpen(j, c.amount)
	}
	gain := allocation.SpreadBenefit(c.amount, c.order.Price, e.lad.At(j).Bottom(), e.tracker.ProfitPct())
	e.tracker.AddActualBenefit(c.eventID, j, gain)
	toOpen := e.policy.SellToOpen(j, c.amount)
	e.tracker.ConsumeBenefit(c.eventID, j, c.amount.Sub(toOpen))
	return toOpen
}

func (e *Engine) buyToOpen(i int, c consumption) decimal.Decimal {
	if e.tracker == nil {
		return e.policy.BuyToOpen(i, c.amount)
	}
	gain := allocation.SpreadBenefit(c.amount, e.lad.At(i).Bottom(), c.order.Price, e.tracker.ProfitPct())
	e.tracker.AddActualBenefit(c.eventID, i, gain)
	toOpen := e.policy.BuyToOpen(i, c.amount)
	e.tracker.ConsumeBenefit(c.eventID, i, toOpen.Sub(c.amount))
	return toOpen
}

// execute opens the decided amounts plus the carry-over, buys first. With
// nothing to open it makes no venue call.
func (e *Engine) execute(ctx context.Context, buys, sells []target) error {
	totalBuy := e.remainingBuy
	for _, t := range buys {
		totalBuy = totalBuy.Add(t.amount)
	}
	totalSell := e.remainingSell
	for _, t := range sells {
		totalSell = totalSell.Add(t.amount)
	}
	if totalBuy.IsZero() && totalSell.IsZero() {
		return nil
	}

	var errs cycleErrors
	if totalBuy.Sign() > 0 {
		start := e.buyStart(buys)
		left, err := e.placeSide(ctx, domain.SideBuy, start, totalBuy)
		e.rep.OpenedBuy = totalBuy.Sub(left)
		e.remainingBuy = left
		if e.halt(&errs, err) {
			return errs.err
		}
	}
	if totalSell.Sign() > 0 {
		start := e.sellStart(sells)
		left, err := e.placeSide(ctx, domain.SideSell, start, totalSell)
		e.rep.OpenedSell = totalSell.Sub(left)
		e.remainingSell = left
		if e.halt(&errs, err) {
			return errs.err
		}
	}
	return errs.err
}

// buyStart is the highest buy target, else the current highest buy, else
// spread_bot.
func (e *Engine) buyStart(buys []target) int {
	if len(buys) > 0 {
		start := buys[0].index
		for _, t := range buys[1:] {
			start = max(start, t.index)
		}
		return start
	}
	if idx := e.lad.BuyIndexes(); len(idx) > 0 {
		return idx[len(idx)-1]
	}
	return e.spreadBot
}

// sellStart is the lowest sell target, else the current lowest sell, else
// spread_top.
func (e *Engine) sellStart(sells []target) int {
	if len(sells) > 0 {
		start := sells[0].index
		for _, t := range sells[1:] {
			start = min(start, t.index)
		}
		return start
	}
	if idx := e.lad.SellIndexes(); len(idx) > 0 {
		return idx[0]
	}
	return e.spreadTop
}

// sideBounds is the index range side may occupy without closing the
// spread gap.
func (e *Engine) sideBounds(side domain.Side) (lo, hi int) {
	gap := e.params.SpreadGap
	lo, hi = 0, e.lad.Len()-1
	if side == domain.SideSell {
		if buys := e.lad.BuyIndexes(); len(buys) > 0 {
			lo = buys[len(buys)-1] + gap + 1
		}
		return lo, hi
	}
	if sells := e.lad.SellIndexes(); len(sells) > 0 {
		hi = sells[0] - gap - 1
	}
	return lo, hi
}

// walk lists the indexes visited when opening side from start: outward
// (down for buys, up for sells) up to the current outer edge, then back
// from start towards the spread.
func (e *Engine) walk(side domain.Side, start int) []int {
	lo, hi := e.sideBounds(side)
	if lo > hi {
		return nil
	}
	start = min(max(start, lo), hi)
	var order []int
	if side == domain.SideSell {
		outer := start
		if idx := e.lad.SellIndexes(); len(idx) > 0 {
			outer = min(max(outer, idx[len(idx)-1]), hi)
		}
		for i := start; i <= outer; i++ {
			order = append(order, i)
		}
		for i := start - 1; i >= lo; i-- {
			order = append(order, i)
		}
		return order
	}
	outer := start
	if idx := e.lad.BuyIndexes(); len(idx) > 0 {
		outer = max(min(outer, idx[0]), lo)
	}
	for i := start; i >= outer; i-- {
		order = append(order, i)
	}
	for i := start + 1; i <= hi; i++ {
		order = append(order, i)
	}
	return order
}

// placeSide tops up intervals along the walk until less than one
// splittable amount is left, and returns what could not be placed. When
// nothing could be placed and the side holds no order, the range edge on
// that side has been reached.
func (e *Engine) placeSide(ctx context.Context, side domain.Side, start int, total decimal.Decimal) (decimal.Decimal, error) {
	floor := e.params.splitFloor()
	left := total
	for _, i := range e.walk(side, start) {
		if left.LessThan(floor) {
			break
		}
		need := e.policy.Amount(i, side).Sub(e.lad.At(i).Amount(side))
		if need.LessThan(floor) {
			continue
		}
		placed, err := e.placeInterval(ctx, side, i, decimal.Min(need, left))
		left = left.Sub(placed)
		if err != nil {
			return left, err
		}
	}

	if left.GreaterThanOrEqual(floor) && len(e.lad.Indexes(side)) == 0 {
		edge := EdgeTop
		if side == domain.SideBuy {
			edge = EdgeBottom
		}
		if err := e.reach(ctx, edge, fmt.Sprintf("no interval can take %s %s", left, side)); err != nil {
			return left, err
		}
	}
	return left, nil
}

// placeInterval splits amount into orders_per_interval orders inside
// interval i and places them. Rejected orders are skipped and their amount
// reported as not placed; any other failure stops the interval.
func (e *Engine) placeInterval(ctx context.Context, side domain.Side, i int, amount decimal.Decimal) (decimal.Decimal, error) {
	reqs, err := e.lad.At(i).GenerateOrdersByAmount(amount, e.params.MinOrderAmount, e.params.OrdersPerInterval, e.rng)
	if err != nil {
		return decimal.Zero, fmt.Errorf("strategy: split %s at interval %d: %w", amount, i, err)
	}

	placed := decimal.Zero
	for _, r := range reqs {
		o, err := e.venue.PlaceLimitOrder(ctx, e.params.Market, side, r.Amount, r.Price)
		if err != nil {
			if errors.Is(err, domain.ErrOrderRejected) {
				e.logger.Warn("order rejected",
					slog.String("side", string(side)),
					slog.Int("interval", i),
					slog.String("price", r.Price.String()),
					slog.String("amount", r.Amount.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			return placed, fmt.Errorf("strategy: place %s at %s: %w", side, r.Price, err)
		}
		o = o.WithAmount(o.Amount, e.params.FeeCoef)
		if _, err := e.lad.Place(o); err != nil {
			return placed, fmt.Errorf("strategy: venue returned order %s: %w", o.ID, err)
		}
		placed = placed.Add(o.Amount)
		e.emit(domain.EventPlaced, o, o.Amount)
	}
	if placed.Sign() > 0 {
		e.clearSentinel(side)
	}
	return placed, nil
}
