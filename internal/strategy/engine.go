// Package strategy runs the interval-ladder market-making loop: it
// reconciles the venue's open orders with the local ladder, re-opens
// consumed amounts on the opposite side of the spread and keeps the number
// of displayed intervals bounded.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/allocation"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/ladder"
	"github.com/alanyoungcy/lazywhale/internal/metrics"
)

// ErrNotReady is returned by Cycle before Init succeeded.
var ErrNotReady = errors.New("strategy: engine not initialised")

// Deps are the collaborators of an Engine. Alerter, Rand and Now are
// optional.
type Deps struct {
	Venue   domain.Venue
	Store   domain.StateStore
	Alerter domain.Alerter
	Logger  *slog.Logger
	Rand    *rand.Rand
	Now     func() time.Time
}

// Engine owns the ladder of one market. Init and Cycle must be called from
// a single goroutine; Status and LadderState are safe from any goroutine.
type Engine struct {
	params  Params
	venue   domain.Venue
	store   domain.StateStore
	alerter domain.Alerter
	policy  allocation.Policy
	tracker allocation.BenefitTracker
	logger  *slog.Logger
	rng     *rand.Rand
	now     func() time.Time

	lad           *ladder.Ladder
	safetyBuy     *domain.Order
	safetySell    *domain.Order
	remainingBuy  decimal.Decimal
	remainingSell decimal.Decimal
	spreadBot     int
	spreadTop     int

	loaded   bool
	ready    bool
	stopping bool
	stopped  bool
	stopEdge Edge

	// per-cycle scratch
	pending []domain.OrderEvent
	rep     *domain.CycleReport

	mu     sync.RWMutex
	status Status
	states []domain.IntervalState
}

// NewEngine validates p and builds an engine with an empty ladder.
func NewEngine(p Params, deps Deps) (*Engine, error) {
	if deps.Venue == nil || deps.Store == nil {
		return nil, errors.New("strategy: venue and store are required")
	}
	lad, err := p.Ladder()
	if err != nil {
		return nil, err
	}
	if err := p.validateWith(lad); err != nil {
		return nil, err
	}
	policy, err := p.Policy(lad.Len())
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := deps.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>7))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		params:  p,
		venue:   deps.Venue,
		store:   deps.Store,
		alerter: deps.Alerter,
		policy:  policy,
		logger: logger.With(
			slog.String("component", "strategy_engine"),
			slog.String("market", p.Market),
		),
		rng:       rng,
		now:       now,
		lad:       lad,
		spreadBot: p.SpreadBot,
		spreadTop: p.SpreadTop,
	}
	if t, ok := policy.(allocation.BenefitTracker); ok {
		e.tracker = t
	}
	e.publish(nil)
	return e, nil
}

// Params returns the parameters the engine was built with.
func (e *Engine) Params() Params { return e.params }

// Init restores the ladder from the latest snapshot or, on a fresh start,
// places the initial ladder and the safety orders. A failed Init may be
// retried; placement tops up intervals, so nothing is placed twice.
func (e *Engine) Init(ctx context.Context) error {
	if e.ready {
		return nil
	}
	if !e.loaded {
		snap, err := e.store.LoadSnapshot(ctx, e.params.Market)
		switch {
		case err == nil:
			if err := e.restore(snap); err != nil {
				return err
			}
			e.loaded, e.ready = true, true
			e.publish(nil)
			return nil
		case errors.Is(err, domain.ErrNotFound):
			e.loaded = true
		default:
			return fmt.Errorf("strategy: load snapshot: %w", err)
		}
	}

	rep := e.beginReport()
	err := e.placeInitial(ctx)
	e.backupSpread()
	if perr := e.persist(ctx); perr != nil && err == nil {
		err = perr
	}
	e.endReport(rep, err)
	if err != nil {
		return err
	}
	e.ready = true
	e.logger.Info("initial ladder placed",
		slog.Int("intervals", e.lad.Len()),
		slog.Int("placed", rep.Placed),
		slog.Int("spread_bot", e.spreadBot),
		slog.Int("spread_top", e.spreadTop),
	)
	return nil
}

func (e *Engine) placeInitial(ctx context.Context) error {
	for k := 0; k < e.params.NbBuyToDisplay; k++ {
		i := e.params.SpreadBot - k
		if i < 0 {
			break
		}
		if err := e.topUp(ctx, domain.SideBuy, i); err != nil {
			return err
		}
	}
	for k := 0; k < e.params.NbSellToDisplay; k++ {
		j := e.params.SpreadTop + k
		if j >= e.lad.Len() {
			break
		}
		if err := e.topUp(ctx, domain.SideSell, j); err != nil {
			return err
		}
	}
	return e.refreshSafety(ctx)
}

// topUp fills interval i to its allocation target.
func (e *Engine) topUp(ctx context.Context, side domain.Side, i int) error {
	need := e.policy.Amount(i, side).Sub(e.lad.At(i).Amount(side))
	if need.LessThan(e.params.splitFloor()) {
		return nil
	}
	_, err := e.placeInterval(ctx, side, i, need)
	return err
}

func (e *Engine) restore(snap domain.LadderSnapshot) error {
	if snap.Market != e.params.Market {
		return domain.NewConfigurationError("market", "snapshot belongs to %q", snap.Market)
	}
	restored, err := ladder.FromStates(snap.Intervals)
	if err != nil {
		return fmt.Errorf("strategy: restore snapshot: %w", err)
	}
	if !restored.SameBounds(e.lad) {
		return domain.NewConfigurationError("range",
			"snapshot ladder (%d intervals) does not match the configured range (%d intervals)", restored.Len(), e.lad.Len())
	}
	if e.tracker != nil {
		if err := e.tracker.Restore(snap.Benefits, snap.ProcessedEvents); err != nil {
			return fmt.Errorf("strategy: restore benefits: %w", err)
		}
	}
	e.lad = restored
	e.safetyBuy, e.safetySell = snap.SafetyBuy, snap.SafetySell
	e.remainingBuy, e.remainingSell = snap.RemainingBuy, snap.RemainingSell
	e.spreadBot, e.spreadTop = snap.SpreadBot, snap.SpreadTop
	if snap.StopEdge != "" {
		e.stopping, e.stopEdge = true, Edge(snap.StopEdge)
	}
	e.logger.Info("ladder restored from snapshot",
		slog.Time("saved_at", snap.SavedAt),
		slog.Int("orders", len(e.lad.Orders())),
		slog.Int("spread_bot", e.spreadBot),
		slog.Int("spread_top", e.spreadTop),
	)
	return nil
}

// Cycle runs one reconciliation pass. Once the open orders are fetched the
// pass always runs to completion; transient failures carry unplaced amounts
// over and are returned at the end. ErrStopRequested, ConfigurationErrors
// and InvariantErrors end the pass immediately.
func (e *Engine) Cycle(ctx context.Context) (domain.CycleReport, error) {
	if !e.ready {
		return domain.CycleReport{}, ErrNotReady
	}
	rep := e.beginReport()
	if e.stopped {
		return e.endReport(rep, fmt.Errorf("strategy: %s boundary: %w", e.stopEdge, domain.ErrStopRequested))
	}
	if e.stopping {
		err := e.stop(ctx, e.stopEdge, "resuming interrupted stop")
		if perr := e.persist(ctx); perr != nil {
			e.logger.Error("persist after stop failed", slog.String("error", perr.Error()))
		}
		return e.endReport(rep, err)
	}

	// FETCH
	open, err := e.venue.OpenOrders(ctx, e.params.Market)
	if err != nil {
		return e.endReport(rep, fmt.Errorf("strategy: fetch open orders: %w", err))
	}

	// FILTER
	own := FilterOwn(open, e.knownIDs())
	rep.Fetched, rep.Foreign = len(own), len(open)-len(own)

	var errs cycleErrors

	// DIFF
	consumed, edges, err := e.diff(own)
	if err != nil {
		return e.endReport(rep, err)
	}
	for _, edge := range edges {
		if e.halt(&errs, e.reach(ctx, edge, "safety order filled")) {
			return e.abort(ctx, rep, errs.err)
		}
	}

	// DECIDE
	buys, sells, edges := e.decide(consumed)
	for _, edge := range edges {
		if e.halt(&errs, e.reach(ctx, edge, "re-open target outside the ladder")) {
			return e.abort(ctx, rep, errs.err)
		}
	}

	// EXECUTE
	if e.halt(&errs, e.execute(ctx, buys, sells)) {
		return e.abort(ctx, rep, errs.err)
	}

	// REBALANCE_DISPLAY_COUNT
	if e.halt(&errs, e.LimitIntervals(ctx)) {
		return e.abort(ctx, rep, errs.err)
	}
	if e.halt(&errs, e.refreshSafety(ctx)) {
		return e.abort(ctx, rep, errs.err)
	}

	// PERSIST
	e.backupSpread()
	rep.NoOp = len(e.pending) == 0 && len(consumed) == 0
	if !rep.NoOp {
		errs.add(e.persist(ctx))
	}
	return e.endReport(rep, errs.err)
}

// abort persists what happened before a terminal error and returns it.
func (e *Engine) abort(ctx context.Context, rep *domain.CycleReport, err error) (domain.CycleReport, error) {
	if !domain.IsFatal(err) {
		e.backupSpread()
		if perr := e.persist(ctx); perr != nil {
			e.logger.Error("persist after stop failed", slog.String("error", perr.Error()))
		}
	}
	return e.endReport(rep, err)
}

// halt records err and reports whether the pass must end now. A stop that
// could not finish ends the pass so nothing is placed while it is pending.
func (e *Engine) halt(errs *cycleErrors, err error) bool {
	if errs.add(err) {
		return true
	}
	if e.stopping && errs.err != nil {
		return true
	}
	return false
}

// cycleErrors keeps the first recoverable error of a pass.
type cycleErrors struct {
	err error
}

// add records err and reports whether the pass must end now.
func (c *cycleErrors) add(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrStopRequested) || domain.IsFatal(err) {
		c.err = err
		return true
	}
	if c.err == nil {
		c.err = err
	}
	return false
}

func (e *Engine) beginReport() *domain.CycleReport {
	rep := &domain.CycleReport{
		ID:            uuid.NewString(),
		Market:        e.params.Market,
		StartedAt:     e.now().UTC(),
		ConsumedBuy:   decimal.Zero,
		ConsumedSell:  decimal.Zero,
		OpenedBuy:     decimal.Zero,
		OpenedSell:    decimal.Zero,
		RemainingBuy:  decimal.Zero,
		RemainingSell: decimal.Zero,
	}
	e.rep = rep
	e.pending = nil
	return rep
}

func (e *Engine) endReport(rep *domain.CycleReport, err error) (domain.CycleReport, error) {
	rep.Duration = e.now().Sub(rep.StartedAt)
	rep.RemainingBuy, rep.RemainingSell = e.remainingBuy, e.remainingSell
	rep.SpreadBot, rep.SpreadTop = e.spreadBot, e.spreadTop
	rep.BuyIntervals = len(e.lad.BuyIndexes())
	rep.SellIntervals = len(e.lad.SellIndexes())
	rep.Events = e.pending
	if err != nil {
		rep.Err = err.Error()
	}
	metrics.ObserveReport(*rep)
	e.publish(rep)
	e.pending = nil
	e.rep = nil
	return *rep, err
}

// emit records an order event for the current pass.
func (e *Engine) emit(kind domain.OrderEventKind, o domain.Order, amount decimal.Decimal) {
	e.pending = append(e.pending, domain.NewOrderEvent(e.params.Market, kind, o, amount, e.now()))
	side := string(o.Side)
	switch kind {
	case domain.EventPlaced:
		metrics.OrdersPlaced.WithLabelValues(e.params.Market, side).Inc()
		if e.rep != nil {
			e.rep.Placed++
		}
	case domain.EventCancelled:
		metrics.OrdersCancelled.WithLabelValues(e.params.Market, side).Inc()
		if e.rep != nil {
			e.rep.Cancelled++
		}
	}
}

// knownIDs is every order id the strategy placed and still tracks.
func (e *Engine) knownIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, o := range e.lad.Orders() {
		if !o.IsFake() {
			ids[o.ID] = struct{}{}
		}
	}
	if e.safetyBuy != nil {
		ids[e.safetyBuy.ID] = struct{}{}
	}
	if e.safetySell != nil {
		ids[e.safetySell.ID] = struct{}{}
	}
	return ids
}

// Knows reports whether orderID is a live order of the ladder or a safety
// order. Call it from the goroutine running Cycle.
func (e *Engine) Knows(orderID string) bool {
	if e.safetyBuy != nil && e.safetyBuy.ID == orderID {
		return true
	}
	if e.safetySell != nil && e.safetySell.ID == orderID {
		return true
	}
	_, o, ok := e.lad.FindOrder(orderID)
	return ok && !o.IsFake()
}

// Status is a read-only view of the engine published after every pass.
type Status struct {
	Market        string              `json:"market"`
	Marketplace   string              `json:"marketplace"`
	Venue         string              `json:"venue"`
	Allocation    string              `json:"allocation"`
	Intervals     int                 `json:"intervals"`
	RangeBot      decimal.Decimal     `json:"range_bot"`
	RangeTop      decimal.Decimal     `json:"range_top"`
	SpreadBot     int                 `json:"spread_bot"`
	SpreadTop     int                 `json:"spread_top"`
	BuyIndexes    []int               `json:"buy_indexes"`
	SellIndexes   []int               `json:"sell_indexes"`
	RemainingBuy  decimal.Decimal     `json:"remaining_buy"`
	RemainingSell decimal.Decimal     `json:"remaining_sell"`
	SafetyBuy     *domain.Order       `json:"safety_buy,omitempty"`
	SafetySell    *domain.Order       `json:"safety_sell,omitempty"`
	Ready         bool                `json:"ready"`
	Stopped       bool                `json:"stopped"`
	LastCycle     *domain.CycleReport `json:"last_cycle,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (e *Engine) publish(rep *domain.CycleReport) {
	st := Status{
		Market:        e.params.Market,
		Marketplace:   e.params.Marketplace,
		Venue:         e.venue.Name(),
		Allocation:    e.policy.Kind().String(),
		Intervals:     e.lad.Len(),
		RangeBot:      e.lad.Bottom(),
		RangeTop:      e.lad.Top(),
		SpreadBot:     e.spreadBot,
		SpreadTop:     e.spreadTop,
		BuyIndexes:    e.lad.BuyIndexes(),
		SellIndexes:   e.lad.SellIndexes(),
		RemainingBuy:  e.remainingBuy,
		RemainingSell: e.remainingSell,
		SafetyBuy:     copyOrder(e.safetyBuy),
		SafetySell:    copyOrder(e.safetySell),
		Ready:         e.ready,
		Stopped:       e.stopped,
		UpdatedAt:     e.now().UTC(),
	}
	states := e.lad.States()

	e.mu.Lock()
	defer e.mu.Unlock()
	if rep != nil {
		cp := *rep
		cp.Events = nil
		st.LastCycle = &cp
	} else {
		st.LastCycle = e.status.LastCycle
	}
	e.status = st
	e.states = states
}

// Status returns the latest published view.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LadderState returns the latest published ladder.
func (e *Engine) LadderState() []domain.IntervalState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states
}

func copyOrder(o *domain.Order) *domain.Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}
