package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Edge names one end of the configured range.
type Edge string

const (
	EdgeBottom Edge = "bottom"
	EdgeTop    Edge = "top"
)

// Side is the ladder side that runs out at e.
func (e Edge) Side() domain.Side {
	if e == EdgeBottom {
		return domain.SideBuy
	}
	return domain.SideSell
}

// BottomReached handles the market leaving the range downwards.
func (e *Engine) BottomReached(ctx context.Context, reason string) error {
	return e.reach(ctx, EdgeBottom, reason)
}

// TopReached handles the market leaving the range upwards.
func (e *Engine) TopReached(ctx context.Context, reason string) error {
	return e.reach(ctx, EdgeTop, reason)
}

// reach either stops the strategy (stop_at_bot / stop_at_top) or parks the
// side behind a single zero-amount sentinel that is never sent to the
// venue. A sentinel already in place swallows repeated events.
func (e *Engine) reach(ctx context.Context, edge Edge, reason string) error {
	stop := e.params.StopAtBot
	if edge == EdgeTop {
		stop = e.params.StopAtTop
	}
	if stop {
		return e.stop(ctx, edge, reason)
	}

	side := edge.Side()
	if e.hasSentinel(side) {
		return nil
	}
	i := e.sentinelIndex(side)
	iv := e.lad.At(i)
	iv.Insert(domain.NewFakeOrder(side, iv.Bottom(), e.now()))
	if e.rep != nil {
		e.rep.Boundary = string(edge)
	}

	e.logger.Warn("range boundary reached, side parked",
		slog.String("edge", string(edge)),
		slog.String("reason", reason),
		slog.Int("interval", i),
	)
	e.notify(ctx, domain.SeverityWarning,
		fmt.Sprintf("%s: %s of range reached", e.params.Market, edge),
		fmt.Sprintf("%s. The %s side is idle until the market returns.", reason, side))
	return nil
}

// stop cancels every order of the strategy, safety orders included. A
// cancel that fails leaves the engine stopping; the next Cycle resumes it.
func (e *Engine) stop(ctx context.Context, edge Edge, reason string) error {
	e.stopping, e.stopEdge = true, edge
	if e.rep != nil {
		e.rep.Boundary = string(edge)
	}

	for i := 0; i < e.lad.Len(); i++ {
		iv := e.lad.At(i)
		for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
			if err := e.cancelInterval(ctx, side, i); err != nil {
				return err
			}
			// Orders whose cancel raced a fill are gone as well.
			for _, o := range iv.Orders(side) {
				iv.RemoveOrder(o.ID)
			}
		}
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		cur := e.safety(side)
		if cur == nil {
			continue
		}
		ok, err := e.venue.CancelOrder(ctx, e.params.Market, cur.ID)
		if err != nil {
			return fmt.Errorf("strategy: cancel safety %s: %w", cur.ID, err)
		}
		kind := domain.EventCancelled
		if !ok {
			kind = domain.EventConsumed
		}
		e.emit(kind, *cur, cur.Amount)
		e.setSafety(side, nil)
	}

	e.stopping, e.stopped = false, true
	e.remainingBuy, e.remainingSell = decimal.Zero, decimal.Zero
	e.logger.Log(ctx, domain.LevelCritical, "range boundary reached, all orders cancelled",
		slog.String("edge", string(edge)),
		slog.String("reason", reason),
	)
	e.notify(ctx, domain.SeverityCritical,
		fmt.Sprintf("%s: stopped at %s of range", e.params.Market, edge),
		fmt.Sprintf("%s. Every order was cancelled and the strategy stopped.", reason))
	return fmt.Errorf("strategy: %s boundary: %w", edge, domain.ErrStopRequested)
}

func (e *Engine) notify(ctx context.Context, sev domain.Severity, title, msg string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, sev, title, msg); err != nil {
		e.logger.Error("alert delivery failed", slog.String("error", err.Error()))
	}
}

// sentinelIndex is the bottom interval for buys and the top one for sells.
func (e *Engine) sentinelIndex(side domain.Side) int {
	if side == domain.SideBuy {
		return 0
	}
	return e.lad.Len() - 1
}

func (e *Engine) hasSentinel(side domain.Side) bool {
	return e.lad.At(e.sentinelIndex(side)).HasFake(side)
}

func (e *Engine) clearSentinel(side domain.Side) {
	iv := e.lad.At(e.sentinelIndex(side))
	if iv.HasFake(side) {
		iv.RemoveFakes(side)
		e.logger.Info("real orders back on parked side", slog.String("side", string(side)))
	}
}
