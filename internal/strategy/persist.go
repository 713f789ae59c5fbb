package strategy

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// BackupSpread recomputes the spread from the live ladder: spread_bot is
// the highest buy (else the lowest sell minus gap+1) and spread_top the
// lowest sell (else spread_bot plus gap+1). With no live order at all the
// previous values are kept.
func (e *Engine) BackupSpread() (bot, top int) {
	e.backupSpread()
	return e.spreadBot, e.spreadTop
}

func (e *Engine) backupSpread() {
	gap := e.params.SpreadGap
	buys, sells := e.lad.BuyIndexes(), e.lad.SellIndexes()
	switch {
	case len(buys) > 0:
		e.spreadBot = buys[len(buys)-1]
	case len(sells) > 0:
		e.spreadBot = sells[0] - gap - 1
	default:
		return
	}
	if len(sells) > 0 {
		e.spreadTop = sells[0]
	} else {
		e.spreadTop = e.spreadBot + gap + 1
	}
}

// Snapshot is the state written after every pass.
func (e *Engine) Snapshot() domain.LadderSnapshot {
	snap := domain.LadderSnapshot{
		Market:        e.params.Market,
		Marketplace:   e.params.Marketplace,
		SavedAt:       e.now().UTC(),
		Intervals:     e.lad.States(),
		SafetyBuy:     copyOrder(e.safetyBuy),
		SafetySell:    copyOrder(e.safetySell),
		RemainingBuy:  e.remainingBuy,
		RemainingSell: e.remainingSell,
		SpreadBot:     e.spreadBot,
		SpreadTop:     e.spreadTop,
	}
	if e.stopping {
		snap.StopEdge = string(e.stopEdge)
	}
	if e.tracker != nil {
		snap.Benefits = e.tracker.Benefits()
		snap.ProcessedEvents = e.tracker.ProcessedEvents()
	}
	return snap
}

// persist saves the parameters record, the pass's order events and the
// snapshot, in that order.
func (e *Engine) persist(ctx context.Context) error {
	rec := e.params.Record(e.lad, e.spreadBot, e.spreadTop, e.now())
	if err := e.store.SaveParams(ctx, rec); err != nil {
		return fmt.Errorf("strategy: save params: %w", err)
	}
	if len(e.pending) > 0 {
		if err := e.store.AppendEvents(ctx, e.pending); err != nil {
			return fmt.Errorf("strategy: append events: %w", err)
		}
	}
	if err := e.store.SaveSnapshot(ctx, e.Snapshot()); err != nil {
		return fmt.Errorf("strategy: save snapshot: %w", err)
	}
	return nil
}
