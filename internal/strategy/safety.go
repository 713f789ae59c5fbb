package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Safety orders rest just outside the range and lock the funds of the
// intervals that are not displayed: the buy one increment below the range
// holds the quote of the undisplayed buy intervals, the sell at the top of
// the ladder holds the base of the undisplayed sell intervals.

func (e *Engine) safety(side domain.Side) *domain.Order {
	if side == domain.SideBuy {
		return e.safetyBuy
	}
	return e.safetySell
}

func (e *Engine) setSafety(side domain.Side, o *domain.Order) {
	if side == domain.SideBuy {
		e.safetyBuy = o
	} else {
		e.safetySell = o
	}
}

// SafetyPrice is where the safety order of side rests.
func (e *Engine) SafetyPrice(side domain.Side) decimal.Decimal {
	if side == domain.SideBuy {
		return fixed.MustDiv(e.lad.Bottom(), e.params.IncrementCoef)
	}
	return e.lad.Top()
}

// SafetyAmount is the base amount the safety order of side must hold for
// the current ladder. Amounts below min_order_amount are zero.
func (e *Engine) SafetyAmount(side domain.Side) decimal.Decimal {
	var amount decimal.Decimal
	if side == domain.SideSell {
		start := e.spreadTop
		if idx := e.lad.SellIndexes(); len(idx) > 0 {
			start = idx[len(idx)-1] + 1
		}
		for k := max(start, 0); k < e.lad.Len(); k++ {
			amount = amount.Add(e.policy.Amount(k, domain.SideSell))
		}
	} else {
		end := e.spreadBot + 1
		if idx := e.lad.BuyIndexes(); len(idx) > 0 {
			end = idx[0]
		}
		quote := decimal.Zero
		for k := 0; k < min(end, e.lad.Len()); k++ {
			quote = quote.Add(fixed.Mul(e.policy.Amount(k, domain.SideBuy), e.lad.At(k).Bottom()))
		}
		amount = fixed.MustDiv(quote, e.SafetyPrice(domain.SideBuy))
	}
	amount = fixed.Quantize(amount)
	if amount.LessThan(e.params.MinOrderAmount) {
		return decimal.Zero
	}
	return amount
}

// refreshSafety re-sizes both safety orders when their required amount
// changed. A side parked behind a boundary sentinel is left alone.
func (e *Engine) refreshSafety(ctx context.Context) error {
	var errs cycleErrors
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if e.hasSentinel(side) {
			continue
		}
		if e.halt(&errs, e.refreshSafetySide(ctx, side)) {
			return errs.err
		}
	}
	return errs.err
}

func (e *Engine) refreshSafetySide(ctx context.Context, side domain.Side) error {
	want := e.SafetyAmount(side)
	cur := e.safety(side)
	if cur != nil && cur.Amount.Equal(want) {
		return nil
	}
	if cur != nil {
		if err := e.dropSafety(ctx, side); err != nil {
			return err
		}
	}
	if want.IsZero() {
		return nil
	}

	price := e.SafetyPrice(side)
	o, err := e.venue.PlaceLimitOrder(ctx, e.params.Market, side, want, price)
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			e.logger.Warn("safety order rejected",
				slog.String("side", string(side)),
				slog.String("price", price.String()),
				slog.String("amount", want.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("strategy: place safety %s: %w", side, err)
	}
	o = o.WithAmount(o.Amount, e.params.FeeCoef)
	e.setSafety(side, &o)
	e.emit(domain.EventPlaced, o, o.Amount)
	return nil
}

// dropSafety cancels the safety order of side. If the venue no longer has
// it, it filled and the range edge on that side has been crossed.
func (e *Engine) dropSafety(ctx context.Context, side domain.Side) error {
	cur := e.safety(side)
	if cur == nil {
		return nil
	}
	ok, err := e.venue.CancelOrder(ctx, e.params.Market, cur.ID)
	if err != nil {
		return fmt.Errorf("strategy: cancel safety %s: %w", cur.ID, err)
	}
	e.setSafety(side, nil)
	if !ok {
		e.emit(domain.EventConsumed, *cur, cur.Amount)
		edge := EdgeTop
		if side == domain.SideBuy {
			edge = EdgeBottom
		}
		return e.reach(ctx, edge, "safety order filled")
	}
	e.emit(domain.EventCancelled, *cur, cur.Amount)
	return nil
}
