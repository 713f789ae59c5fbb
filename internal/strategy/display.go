package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// LimitIntervals moves each side one step towards its display count:
// the outermost interval is cancelled when too many are live, one interval
// beyond the outermost is opened when too few are. An empty side whose
// next interval lies outside the ladder has reached the range edge.
func (e *Engine) LimitIntervals(ctx context.Context) error {
	var errs cycleErrors
	if e.halt(&errs, e.limitSide(ctx, domain.SideBuy, e.params.NbBuyToDisplay)) {
		return errs.err
	}
	if e.halt(&errs, e.limitSide(ctx, domain.SideSell, e.params.NbSellToDisplay)) {
		return errs.err
	}
	return errs.err
}

func (e *Engine) limitSide(ctx context.Context, side domain.Side, want int) error {
	idx := e.lad.Indexes(side)
	switch {
	case len(idx) > want:
		return e.cancelInterval(ctx, side, outermost(side, idx))

	case len(idx) == 0:
		next := e.innerEdge(side)
		if !e.lad.Valid(next) {
			edge := EdgeTop
			if side == domain.SideBuy {
				edge = EdgeBottom
			}
			return e.reach(ctx, edge, fmt.Sprintf("no %s interval left inside the ladder", side))
		}
		if e.hasSentinel(side) {
			return nil
		}
		return e.openInterval(ctx, side, next)

	case len(idx) < want:
		if e.hasSentinel(side) {
			return nil
		}
		next := outermost(side, idx) + 1
		if side == domain.SideBuy {
			next = outermost(side, idx) - 1
		}
		if !e.lad.Valid(next) {
			return nil
		}
		return e.openInterval(ctx, side, next)
	}
	return nil
}

// outermost is the live index farthest from the spread.
func outermost(side domain.Side, idx []int) int {
	if side == domain.SideBuy {
		return idx[0]
	}
	return idx[len(idx)-1]
}

// innerEdge is where an empty side starts again: gap+1 intervals beyond
// the nearest opposite order, or the recorded spread.
func (e *Engine) innerEdge(side domain.Side) int {
	gap := e.params.SpreadGap
	if side == domain.SideBuy {
		if sells := e.lad.SellIndexes(); len(sells) > 0 {
			return sells[0] - gap - 1
		}
		return e.spreadBot
	}
	if buys := e.lad.BuyIndexes(); len(buys) > 0 {
		return buys[len(buys)-1] + gap + 1
	}
	return e.spreadTop
}

// cancelInterval cancels the real orders of side in interval i. An order
// the venue no longer knows has filled; it stays in the ladder so the next
// diff re-opens it on the other side.
func (e *Engine) cancelInterval(ctx context.Context, side domain.Side, i int) error {
	iv := e.lad.At(i)
	for _, o := range iv.Orders(side) {
		if o.IsFake() {
			continue
		}
		ok, err := e.venue.CancelOrder(ctx, e.params.Market, o.ID)
		if err != nil {
			return fmt.Errorf("strategy: cancel %s: %w", o.ID, err)
		}
		if !ok {
			e.logger.Info("cancel raced a fill, leaving it for the next diff",
				slog.String("order_id", o.ID),
				slog.Int("interval", i),
			)
			continue
		}
		iv.RemoveOrder(o.ID)
		e.emit(domain.EventCancelled, o, o.Amount)
	}
	return nil
}

// openInterval places the full allocation of interval i. A rejection
// usually means the funds are still locked by the safety order of that
// side, so the safety order is released and re-sized on the next pass.
func (e *Engine) openInterval(ctx context.Context, side domain.Side, i int) error {
	amount := e.policy.Amount(i, side).Sub(e.lad.At(i).Amount(side))
	if amount.LessThan(e.params.splitFloor()) {
		return nil
	}
	placed, err := e.placeInterval(ctx, side, i, amount)
	if err != nil {
		return err
	}
	if placed.Sign() > 0 {
		return nil
	}
	if safety := e.safety(side); safety != nil {
		e.logger.Warn("display extension rejected, releasing safety order",
			slog.String("side", string(side)),
			slog.Int("interval", i),
			slog.String("safety_id", safety.ID),
		)
		return e.dropSafety(ctx, side)
	}
	return nil
}
