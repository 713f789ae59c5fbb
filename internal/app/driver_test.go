package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/cache/redis"
	"github.com/alanyoungcy/lazywhale/internal/config"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/platform/paper"
	"github.com/alanyoungcy/lazywhale/internal/store/file"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

const testMarket = "ETH/BTC"

var (
	errVenueDown = domain.Transient(errors.New("venue down"))
	quietLogger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type step struct {
	rep domain.CycleReport
	err error
}

// scriptedEngine replays init errors and cycle results, then requests a
// stop.
type scriptedEngine struct {
	initErrs []error
	steps    []step
	inits    int
	cycles   int
}

func (e *scriptedEngine) Init(context.Context) error {
	i := e.inits
	e.inits++
	if i < len(e.initErrs) {
		return e.initErrs[i]
	}
	return nil
}

func (e *scriptedEngine) Cycle(context.Context) (domain.CycleReport, error) {
	i := e.cycles
	e.cycles++
	if i >= len(e.steps) {
		return domain.CycleReport{}, domain.ErrStopRequested
	}
	return e.steps[i].rep, e.steps[i].err
}

func (e *scriptedEngine) LadderState() []domain.IntervalState {
	return []domain.IntervalState{{Bottom: decimal.RequireFromString("0.01"), Top: decimal.RequireFromString("0.010102")}}
}

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

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *memPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

type memRecorder struct {
	mu      sync.Mutex
	reports []domain.CycleReport
	// onRecord runs after every recorded cycle.
	onRecord func(n int)
}

func (r *memRecorder) RecordCycle(_ context.Context, rep domain.CycleReport) error {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	n := len(r.reports)
	r.mu.Unlock()
	if r.onRecord != nil {
		r.onRecord(n)
	}
	return nil
}

func (r *memRecorder) RecentCycles(context.Context, string, int) ([]domain.CycleReport, error) {
	return nil, nil
}

func (r *memRecorder) Close() error { return nil }

func newTestDriver(cfg DriverConfig, deps DriverDeps) *Driver {
	if deps.Logger == nil {
		deps.Logger = quietLogger
	}
	cfg.Market = testMarket
	d := NewDriver(cfg, deps)
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return d
}

func TestDriverAlertsAtEveryMultiple(t *testing.T) {
	eng := &scriptedEngine{steps: []step{
		{err: errVenueDown}, {err: errVenueDown}, {err: errVenueDown},
		{err: errVenueDown}, {err: errVenueDown},
	}}
	alerter := &recordingAlerter{}
	audit := &memAudit{}
	d := newTestDriver(DriverConfig{AlertAfter: 2}, DriverDeps{Engine: eng, Alerter: alerter, Audit: audit})

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []domain.Severity{domain.SeverityWarning, domain.SeverityWarning}, alerter.alerts)
	assert.Equal(t, []string{"strategy.start", "strategy.stop"}, audit.events)
	assert.Equal(t, 6, eng.cycles)
}

func TestDriverSuccessResetsFailures(t *testing.T) {
	eng := &scriptedEngine{steps: []step{
		{err: errVenueDown}, {err: errVenueDown}, {},
		{err: errVenueDown}, {err: errVenueDown},
	}}
	alerter := &recordingAlerter{}
	d := newTestDriver(DriverConfig{AlertAfter: 3}, DriverDeps{Engine: eng, Alerter: alerter})

	require.NoError(t, d.Run(context.Background()))
	assert.Empty(t, alerter.alerts)
	assert.Equal(t, 2, d.failures)
}

func TestDriverFatalDumpsLadder(t *testing.T) {
	var logs bytes.Buffer
	eng := &scriptedEngine{steps: []step{
		{err: domain.NewInvariantError("order_in_interval", "price outside")},
	}}
	alerter := &recordingAlerter{}
	audit := &memAudit{}
	d := newTestDriver(DriverConfig{}, DriverDeps{
		Engine:  eng,
		Alerter: alerter,
		Audit:   audit,
		Logger:  slog.New(slog.NewJSONHandler(&logs, nil)),
	})

	err := d.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, []domain.Severity{domain.SeverityCritical}, alerter.alerts)
	assert.Contains(t, audit.events, "strategy.fatal")
	assert.Contains(t, logs.String(), "strategy terminated")
	assert.Contains(t, logs.String(), `"bottom":"0.01"`)
}

func TestDriverInitRetriesTransientFailures(t *testing.T) {
	eng := &scriptedEngine{initErrs: []error{errVenueDown, errVenueDown}}
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: eng})

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 3, eng.inits)
	assert.Equal(t, 0, d.failures)
}

func TestDriverInitConfigurationErrorIsFatal(t *testing.T) {
	eng := &scriptedEngine{initErrs: []error{domain.NewConfigurationError("snapshot", "ladder mismatch")}}
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: eng})

	err := d.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, 0, eng.cycles)
}

func TestDriverPublishesAndRecordsReports(t *testing.T) {
	o := domain.NewOrder("o1", domain.SideBuy, decimal.RequireFromString("0.0105"), decimal.RequireFromString("0.02"), decimal.NewFromInt(1), time.Now())
	ev := domain.NewOrderEvent(testMarket, domain.EventConsumed, o, o.Amount, time.Now())
	eng := &scriptedEngine{steps: []step{
		{rep: domain.CycleReport{ID: "c1", Market: testMarket, Events: []domain.OrderEvent{ev, ev}}},
		{rep: domain.CycleReport{ID: "c2", Market: testMarket}, err: errVenueDown},
	}}
	pub := &memPublisher{}
	rec := &memRecorder{}
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: eng, Publisher: pub, Recorder: rec})

	require.NoError(t, d.Run(context.Background()))
	require.Len(t, rec.reports, 2)
	assert.Len(t, rec.reports[0].Events, 2)
	assert.Equal(t, []string{
		redis.CycleChannel(testMarket),
		redis.OrdersChannel(testMarket),
		redis.OrdersChannel(testMarket),
		redis.CycleChannel(testMarket),
	}, pub.channels)
}

func TestDriverStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: &scriptedEngine{}})
	assert.NoError(t, d.Run(ctx))
}

func TestDriverRefusesHeldLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redis.New(ctx, redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	locks := redis.NewLockManager(client)

	held, err := locks.Acquire(ctx, LockKey(testMarket), time.Minute)
	require.NoError(t, err)

	eng := &scriptedEngine{}
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: eng, Locks: locks})
	require.ErrorIs(t, d.Run(ctx), domain.ErrLockHeld)
	assert.Equal(t, 0, eng.inits)

	held.Release()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 1, eng.inits)
	_, err = locks.Acquire(ctx, LockKey(testMarket), time.Minute)
	assert.NoError(t, err, "lock is released when the run ends")
}

func TestDriverRunsPaperLadder(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategy.Market = testMarket
	cfg.Strategy.RangeBot = "0.01"
	cfg.Strategy.RangeTop = "0.015"
	cfg.Strategy.IncrementCoef = "1.0102"
	cfg.Strategy.Amount = "0.02"
	cfg.Strategy.SpreadBot = "0.0105"
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	pcfg, err := paperConfig(config.PaperConfig{BaseBalance: "100", QuoteBalance: "10", Seed: 3}, params)
	require.NoError(t, err)
	venue, err := paper.New(pcfg)
	require.NoError(t, err)

	files, err := file.New(t.TempDir())
	require.NoError(t, err)
	engine, err := strategy.NewEngine(params, strategy.Deps{Venue: venue, Store: files, Logger: quietLogger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &memRecorder{onRecord: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	d := newTestDriver(DriverConfig{}, DriverDeps{Engine: engine, Recorder: rec})

	require.NoError(t, d.Run(ctx))
	assert.Len(t, rec.reports, 3)

	snap, err := files.LoadSnapshot(context.Background(), testMarket)
	require.NoError(t, err)
	assert.Equal(t, params.SpreadBot, snap.SpreadBot)

	open, err := venue.OpenOrders(context.Background(), testMarket)
	require.NoError(t, err)
	assert.NotEmpty(t, open)
}
