package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/allocation"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
	"github.com/alanyoungcy/lazywhale/internal/ladder"
	"github.com/alanyoungcy/lazywhale/internal/platform/paper"
)

const testMarket = "ETH/BTC"

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testTime   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return fixed.MustParse(s) }

type memStore struct {
	mu     sync.Mutex
	params map[string]domain.ParamsRecord
	events []domain.OrderEvent
	snaps  map[string]domain.LadderSnapshot
}

func newMemStore() *memStore {
	return &memStore{
		params: make(map[string]domain.ParamsRecord),
		snaps:  make(map[string]domain.LadderSnapshot),
	}
}

func (m *memStore) SaveParams(_ context.Context, rec domain.ParamsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[rec.Market] = rec
	return nil
}

func (m *memStore) LoadParams(_ context.Context, market string) (domain.ParamsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.params[market]
	if !ok {
		return domain.ParamsRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) AppendEvents(_ context.Context, events []domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) RecentEvents(_ context.Context, _ string, limit int) ([]domain.OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.events) {
		limit = len(m.events)
	}
	return append([]domain.OrderEvent(nil), m.events[len(m.events)-limit:]...), nil
}

func (m *memStore) ListEvents(context.Context, string, time.Time, time.Time) ([]domain.OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderEvent(nil), m.events...), nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap domain.LadderSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Market] = snap
	return nil
}

func (m *memStore) LoadSnapshot(_ context.Context, market string) (domain.LadderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[market]
	if !ok {
		return domain.LadderSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

// recordingAlerter keeps every alert.
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Severity
}

func (a *recordingAlerter) Alert(_ context.Context, sev domain.Severity, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, sev)
	return nil
}

// baseParams is the 40-interval ETH/BTC ladder of 0.01-0.015 at 1.0102
// with one 0.02 order per interval.
func baseParams(spreadBot int) Params {
	return Params{
		Marketplace:       "paper",
		Market:            testMarket,
		RangeBot:          d("0.01"),
		RangeTop:          d("0.015"),
		IncrementCoef:     d("1.0102"),
		Amount:            d("0.02"),
		OrdersPerInterval: 1,
		MinOrderAmount:    d("0.001"),
		FeeCoef:           decimal.NewFromInt(1),
		SpreadBot:         spreadBot,
		SpreadTop:         spreadBot + DefaultSpreadGap + 1,
		SpreadGap:         DefaultSpreadGap,
		NbBuyToDisplay:    6,
		NbSellToDisplay:   5,
		ProfitsAlloc:      decimal.Zero,
		Allocation:        allocation.KindConstant,
	}
}

type harness struct {
	engine  *Engine
	venue   *paper.Venue
	store   *memStore
	alerter *recordingAlerter
	ladder  *ladder.Ladder
}

// newHarness starts a paper venue priced inside the spread gap and runs
// Init.
func newHarness(t *testing.T, p Params) *harness {
	t.Helper()
	lad, err := p.Ladder()
	require.NoError(t, err)

	venue, err := paper.New(paper.Config{
		Market:         p.Market,
		MinOrderAmount: p.MinOrderAmount,
		StartPrice:     lad.At(p.SpreadBot + 1).Bottom(),
		BaseBalance:    d("1000"),
		QuoteBalance:   d("1000"),
		Seed:           7,
	})
	require.NoError(t, err)
	venue.SetClock(func() time.Time { return testTime })

	h := &harness{venue: venue, store: newMemStore(), alerter: &recordingAlerter{}, ladder: lad}
	h.engine = h.newEngine(t, p)
	require.NoError(t, h.engine.Init(context.Background()))
	return h
}

func (h *harness) newEngine(t *testing.T, p Params) *Engine {
	t.Helper()
	e, err := NewEngine(p, Deps{
		Venue:   h.venue,
		Store:   h.store,
		Alerter: h.alerter,
		Logger:  testLogger,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Now:     func() time.Time { return testTime },
	})
	require.NoError(t, err)
	return e
}

func (h *harness) ordersAt(i int, side domain.Side) []domain.Order {
	var out []domain.Order
	for _, o := range h.engine.lad.At(i).Orders(side) {
		if !o.IsFake() {
			out = append(out, o)
		}
	}
	return out
}

func (h *harness) open(t *testing.T) []domain.Order {
	t.Helper()
	open, err := h.venue.OpenOrders(context.Background(), testMarket)
	require.NoError(t, err)
	return open
}

func fakes(e *Engine) []domain.Order {
	var out []domain.Order
	for _, o := range e.lad.Orders() {
		if o.IsFake() {
			out = append(out, o)
		}
	}
	return out
}

func TestInitPlacesLadder(t *testing.T) {
	h := newHarness(t, baseParams(5))
	e := h.engine

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, e.lad.BuyIndexes())
	assert.Equal(t, []int{8, 9, 10, 11, 12}, e.lad.SellIndexes())
	for _, i := range e.lad.BuyIndexes() {
		assert.True(t, e.lad.At(i).BuyAmount().Equal(d("0.02")), "buy interval %d", i)
	}

	assert.Nil(t, e.safetyBuy, "every buy interval is displayed")
	require.NotNil(t, e.safetySell)
	assert.True(t, e.safetySell.Amount.Equal(d("0.54")), "27 undisplayed sell intervals")
	assert.True(t, e.safetySell.Price.Equal(e.lad.Top()))

	assert.Len(t, h.open(t), 12)
	_, err := h.store.LoadSnapshot(context.Background(), testMarket)
	require.NoError(t, err)
	rec, err := h.store.LoadParams(context.Background(), testMarket)
	require.NoError(t, err)
	assert.True(t, rec.SpreadBot.Equal(e.lad.At(5).Bottom()))
	assert.True(t, rec.SpreadTop.Equal(e.lad.At(8).Bottom()))
}

func TestCycleNoOp(t *testing.T) {
	h := newHarness(t, baseParams(5))
	placed := len(h.open(t))

	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.NoOp)
	assert.Zero(t, rep.Placed)
	assert.Zero(t, rep.Cancelled)
	assert.Len(t, h.open(t), placed)
}

func TestBuyConsumedOpensSellAcrossGap(t *testing.T) {
	h := newHarness(t, baseParams(5))
	buy := h.ordersAt(5, domain.SideBuy)
	require.Len(t, buy, 1)
	require.NoError(t, h.venue.Fill(buy[0].ID, buy[0].Amount))

	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.ConsumedBuy.Equal(d("0.02")))
	assert.True(t, rep.OpenedSell.Equal(d("0.02")))
	sells := h.ordersAt(7, domain.SideSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Amount.Equal(d("0.02")))
	assert.Empty(t, h.ordersAt(5, domain.SideBuy))

	assert.Equal(t, 4, rep.SpreadBot)
	assert.Equal(t, 7, rep.SpreadTop)
	assert.Equal(t, rep.SpreadTop, rep.SpreadBot+DefaultSpreadGap+1)

	kinds := map[domain.OrderEventKind]int{}
	for _, ev := range h.store.events {
		kinds[ev.Event]++
	}
	assert.Equal(t, 1, kinds[domain.EventConsumed])
}

func TestPartialFillCarriesOver(t *testing.T) {
	h := newHarness(t, baseParams(5))
	buy := h.ordersAt(5, domain.SideBuy)[0]
	require.NoError(t, h.venue.Fill(buy.ID, d("0.01")))

	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.ConsumedBuy.Equal(d("0.01")))
	assert.True(t, rep.OpenedSell.IsZero(), "the gap to the partial buy must stay open")
	assert.True(t, h.engine.remainingSell.Equal(d("0.01")))

	require.NoError(t, h.venue.Fill(buy.ID, d("0.01")))
	rep, err = h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OpenedSell.Equal(d("0.02")))
	assert.True(t, h.engine.remainingSell.IsZero())
	assert.True(t, h.engine.lad.At(7).SellAmount().Equal(d("0.02")))
}

func TestSellConsumedOpensBuyAcrossGap(t *testing.T) {
	h := newHarness(t, baseParams(5))
	sell := h.ordersAt(8, domain.SideSell)[0]
	require.NoError(t, h.venue.Fill(sell.ID, sell.Amount))

	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OpenedBuy.Equal(d("0.02")))
	assert.True(t, h.engine.lad.At(6).BuyAmount().Equal(d("0.02")))
	assert.Equal(t, 6, rep.SpreadBot)
	assert.Equal(t, 9, rep.SpreadTop)
}

func TestLimitIntervalsCancelsOutermost(t *testing.T) {
	p := baseParams(10)
	p.NbBuyToDisplay = 5
	h := newHarness(t, p)
	require.Equal(t, []int{6, 7, 8, 9, 10}, h.engine.lad.BuyIndexes())

	h.engine.params.NbBuyToDisplay = 3
	require.NoError(t, h.engine.LimitIntervals(context.Background()))
	assert.Equal(t, []int{7, 8, 9, 10}, h.engine.lad.BuyIndexes(), "one interval per pass")

	require.NoError(t, h.engine.LimitIntervals(context.Background()))
	assert.Equal(t, []int{8, 9, 10}, h.engine.lad.BuyIndexes())
}

func TestLimitIntervalsExtendsOneStep(t *testing.T) {
	p := baseParams(10)
	p.NbBuyToDisplay = 3
	h := newHarness(t, p)
	require.NotNil(t, h.engine.safetyBuy)
	before := h.engine.safetyBuy.Amount

	h.engine.params.NbBuyToDisplay = 5
	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8, 9, 10}, h.engine.lad.BuyIndexes())
	assert.Equal(t, 4, rep.BuyIntervals)
	require.NotNil(t, h.engine.safetyBuy)
	assert.True(t, h.engine.safetyBuy.Amount.LessThan(before), "safety buy shrinks as the ladder grows")
}

func TestLimitIntervalsCancelRaceLeftForDiff(t *testing.T) {
	p := baseParams(10)
	p.NbBuyToDisplay = 5
	h := newHarness(t, p)
	outer := h.ordersAt(6, domain.SideBuy)[0]
	require.NoError(t, h.venue.Fill(outer.ID, outer.Amount))

	h.engine.params.NbBuyToDisplay = 4
	require.NoError(t, h.engine.LimitIntervals(context.Background()))
	assert.Len(t, h.ordersAt(6, domain.SideBuy), 1, "filled order stays until the next diff")

	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.ConsumedBuy.Equal(d("0.02")))
}

func TestStopAtBottom(t *testing.T) {
	p := baseParams(0)
	p.NbBuyToDisplay = 1
	p.StopAtBot = true
	h := newHarness(t, p)
	require.Equal(t, []int{0}, h.engine.lad.BuyIndexes())

	h.venue.SetPrice(h.ladder.At(0).Bottom())
	rep, err := h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrStopRequested)
	assert.Equal(t, string(EdgeBottom), rep.Boundary)

	assert.Empty(t, h.open(t), "every order cancelled, safety included")
	assert.Empty(t, h.engine.lad.Orders())
	assert.Nil(t, h.engine.safetySell)
	assert.True(t, h.engine.Status().Stopped)
	assert.Contains(t, h.alerter.alerts, domain.SeverityCritical)

	_, err = h.engine.Cycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrStopRequested)
}

// flakyCancelVenue fails the first cancels with a timeout and counts the
// placements made while a stop is pending.
type flakyCancelVenue struct {
	*paper.Venue
	engine              *Engine
	failCancels         int
	placedWhileStopping int
}

func (v *flakyCancelVenue) CancelOrder(ctx context.Context, market, orderID string) (bool, error) {
	if v.failCancels > 0 {
		v.failCancels--
		return false, domain.Transient(fmt.Errorf("timeout"))
	}
	return v.Venue.CancelOrder(ctx, market, orderID)
}

func (v *flakyCancelVenue) PlaceLimitOrder(ctx context.Context, market string, side domain.Side, amount, price decimal.Decimal) (domain.Order, error) {
	if v.engine.stopping {
		v.placedWhileStopping++
	}
	return v.Venue.PlaceLimitOrder(ctx, market, side, amount, price)
}

func TestStopInterruptedByCancelFailure(t *testing.T) {
	p := baseParams(0)
	p.NbBuyToDisplay = 1
	p.StopAtBot = true
	h := newHarness(t, p)
	flaky := &flakyCancelVenue{Venue: h.venue, engine: h.engine, failCancels: 1}
	h.engine.venue = flaky

	h.venue.SetPrice(h.ladder.At(0).Bottom())
	rep, err := h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrTransientVenue)
	assert.NotErrorIs(t, err, domain.ErrStopRequested)
	assert.Equal(t, string(EdgeBottom), rep.Boundary)
	assert.Zero(t, flaky.placedWhileStopping, "nothing placed once the stop began")
	assert.True(t, h.engine.stopping)
	assert.False(t, h.engine.Status().Stopped)
	assert.Equal(t, string(EdgeBottom), h.store.snaps[testMarket].StopEdge)

	_, err = h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrStopRequested)
	assert.Zero(t, flaky.placedWhileStopping)
	assert.Empty(t, h.open(t))
	assert.True(t, h.engine.Status().Stopped)
	assert.Empty(t, h.store.snaps[testMarket].StopEdge)
}

func TestPendingStopResumedAfterRestart(t *testing.T) {
	p := baseParams(0)
	p.NbBuyToDisplay = 1
	p.StopAtBot = true
	h := newHarness(t, p)
	h.engine.venue = &flakyCancelVenue{Venue: h.venue, engine: h.engine, failCancels: 1}

	h.venue.SetPrice(h.ladder.At(0).Bottom())
	_, err := h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrTransientVenue)

	restarted := h.newEngine(t, p)
	require.NoError(t, restarted.Init(context.Background()))
	_, err = restarted.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrStopRequested)
	assert.Empty(t, h.open(t))
}

// brokenSnapshots fails every snapshot write.
type brokenSnapshots struct {
	*memStore
}

func (brokenSnapshots) SaveSnapshot(context.Context, domain.LadderSnapshot) error {
	return fmt.Errorf("disk full")
}

func TestResumedStopLogsPersistFailure(t *testing.T) {
	p := baseParams(0)
	p.NbBuyToDisplay = 1
	p.StopAtBot = true
	h := newHarness(t, p)
	h.engine.venue = &flakyCancelVenue{Venue: h.venue, engine: h.engine, failCancels: 1}

	h.venue.SetPrice(h.ladder.At(0).Bottom())
	_, err := h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrTransientVenue)

	var logs bytes.Buffer
	h.engine.logger = slog.New(slog.NewJSONHandler(&logs, nil))
	h.engine.store = brokenSnapshots{h.store}
	_, err = h.engine.Cycle(context.Background())
	require.ErrorIs(t, err, domain.ErrStopRequested)
	assert.Contains(t, logs.String(), "persist after stop failed")
	assert.Contains(t, logs.String(), "disk full")
}

// topState drives the ladder to the top edge: spread at 36/39, a single
// displayed sell interval, and a price just below the top of the ladder.
func topState(t *testing.T, stop bool) (*harness, domain.CycleReport, error) {
	t.Helper()
	p := baseParams(36)
	p.NbBuyToDisplay = 3
	p.NbSellToDisplay = 1
	p.StopAtTop = stop
	h := newHarness(t, p)
	require.Equal(t, []int{39}, h.engine.lad.SellIndexes())

	h.venue.SetPrice(h.ladder.Top().Sub(fixed.Unit))
	rep, err := h.engine.Cycle(context.Background())
	return h, rep, err
}

func TestTopReachedPlacesOneSentinel(t *testing.T) {
	h, rep, err := topState(t, false)
	require.NoError(t, err)
	assert.Equal(t, string(EdgeTop), rep.Boundary)

	f := fakes(h.engine)
	require.Len(t, f, 1)
	assert.Equal(t, domain.FakeSellID, f[0].ID)
	assert.True(t, f[0].Amount.IsZero())
	i, _, ok := h.engine.lad.FindOrder(domain.FakeSellID)
	require.True(t, ok)
	assert.Equal(t, h.engine.lad.Len()-1, i)
	for _, o := range h.open(t) {
		assert.False(t, o.IsFake(), "sentinels never reach the venue")
	}
	assert.Equal(t, []int{35, 36, 37}, h.engine.lad.BuyIndexes())

	rep, err = h.engine.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Boundary, "repeat event suppressed")
	assert.Len(t, fakes(h.engine), 1)
}

func TestTopReachedStops(t *testing.T) {
	h, rep, err := topState(t, true)
	require.ErrorIs(t, err, domain.ErrStopRequested)
	assert.Equal(t, string(EdgeTop), rep.Boundary)
	assert.Empty(t, h.open(t))
	assert.Empty(t, fakes(h.engine))
}

func TestSentinelRemovedWhenOrdersReturn(t *testing.T) {
	h, _, err := topState(t, false)
	require.NoError(t, err)
	require.Len(t, fakes(h.engine), 1)

	buy := h.ordersAt(37, domain.SideBuy)[0]
	require.NoError(t, h.venue.Fill(buy.ID, buy.Amount))
	_, err = h.engine.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fakes(h.engine))
	assert.Equal(t, []int{39}, h.engine.lad.SellIndexes())
}

func TestBoundaryDeterministic(t *testing.T) {
	for run := 0; run < 3; run++ {
		h, rep, err := topState(t, false)
		require.NoError(t, err)
		assert.Equal(t, string(EdgeTop), rep.Boundary)
		assert.Len(t, fakes(h.engine), 1)
	}
}

func TestFilterOwn(t *testing.T) {
	at := testTime
	open := []domain.Order{
		domain.NewOrder("a", domain.SideBuy, d("0.011"), d("0.02"), decimal.NewFromInt(1), at),
		domain.NewOrder("manual", domain.SideSell, d("0.013"), d("1"), decimal.NewFromInt(1), at),
		domain.NewOrder("b", domain.SideSell, d("0.012"), d("0.02"), decimal.NewFromInt(1), at),
	}
	known := map[string]struct{}{"a": {}, "b": {}}

	once := FilterOwn(open, known)
	twice := FilterOwn(once, known)
	assert.Equal(t, once, twice)
	require.Len(t, once, 2)
	assert.Equal(t, "a", once[0].ID)
	assert.Equal(t, "b", once[1].ID)
	assert.Equal(t, "manual", open[1].ID, "input untouched")
}

func TestConsumedAmountIsConserved(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			p := baseParams(15)
			p.NbBuyToDisplay = 10
			p.NbSellToDisplay = 24
			h := newHarness(t, p)
			rng := rand.New(rand.NewPCG(seed, seed*31))

			for i := 6; i <= 15; i++ {
				if rng.IntN(2) == 0 {
					continue
				}
				o := h.ordersAt(i, domain.SideBuy)[0]
				part := d(fmt.Sprintf("0.%03d", 1+rng.IntN(20)))
				require.NoError(t, h.venue.Fill(o.ID, part))
			}

			before := h.engine.remainingSell
			rep, err := h.engine.Cycle(context.Background())
			require.NoError(t, err)
			assert.True(t, rep.OpenedSell.Add(rep.RemainingSell).Equal(rep.ConsumedBuy.Add(before)),
				"opened %s + carried %s != consumed %s", rep.OpenedSell, rep.RemainingSell, rep.ConsumedBuy)
			bot, top := h.engine.BackupSpread()
			assert.Less(t, bot, top)
		})
	}
}

func TestRestartRestoresSnapshot(t *testing.T) {
	h := newHarness(t, baseParams(5))
	sell := h.ordersAt(9, domain.SideSell)[0]
	placed := len(h.open(t))

	restarted := h.newEngine(t, baseParams(5))
	require.NoError(t, restarted.Init(context.Background()))
	assert.Len(t, h.open(t), placed, "restore places nothing")
	assert.Equal(t, h.engine.lad.BuyIndexes(), restarted.lad.BuyIndexes())
	_, got, ok := restarted.lad.FindOrder(sell.ID)
	require.True(t, ok)
	assert.True(t, got.Same(sell))
	assert.Equal(t, h.engine.safetySell.ID, restarted.safetySell.ID)
}

func TestRestartRejectsChangedRange(t *testing.T) {
	h := newHarness(t, baseParams(5))
	p := baseParams(5)
	p.RangeTop = d("0.016")

	restarted := h.newEngine(t, p)
	err := restarted.Init(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestProfitPolicyKeepsSpreadAsBase(t *testing.T) {
	p := baseParams(5)
	p.Allocation = allocation.KindProfit
	p.ProfitsAlloc = d("50")
	h := newHarness(t, p)

	buy := h.ordersAt(5, domain.SideBuy)[0]
	require.NoError(t, h.venue.Fill(buy.ID, buy.Amount))
	rep, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.ConsumedBuy.Equal(d("0.02")))
	assert.True(t, rep.OpenedSell.LessThan(rep.ConsumedBuy), "part of the spread stays as base")
	assert.True(t, rep.OpenedSell.GreaterThan(d("0.019")))
	assert.NotEmpty(t, h.engine.Snapshot().ProcessedEvents)
}

func TestStatusPublished(t *testing.T) {
	h := newHarness(t, baseParams(5))
	_, err := h.engine.Cycle(context.Background())
	require.NoError(t, err)

	st := h.engine.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "paper", st.Venue)
	assert.Equal(t, 40, st.Intervals)
	require.NotNil(t, st.LastCycle)
	assert.Len(t, h.engine.LadderState(), 40)
}

func TestCycleBeforeInit(t *testing.T) {
	h := newHarness(t, baseParams(5))
	fresh := h.newEngine(t, baseParams(5))
	_, err := fresh.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}
