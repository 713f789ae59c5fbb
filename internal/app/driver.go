package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lazywhale/internal/cache/redis"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/metrics"
	"github.com/alanyoungcy/lazywhale/internal/recorder"
)

// CycleEngine is the part of strategy.Engine the driver needs.
type CycleEngine interface {
	Init(ctx context.Context) error
	Cycle(ctx context.Context) (domain.CycleReport, error)
	LadderState() []domain.IntervalState
}

// Publisher forwards cycle reports and order events to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// DriverConfig tunes the cycle loop.
type DriverConfig struct {
	Market     string
	Interval   time.Duration
	AlertAfter int
	LockTTL    time.Duration
}

// Driver runs Init and then one Cycle per interval, and is the single place
// deciding whether a failure is retried, escalated or terminal.
type Driver struct {
	engine    CycleEngine
	cfg       DriverConfig
	locks     domain.LockManager
	recorder  recorder.Recorder
	publisher Publisher
	streams   domain.SignalBus
	alerter   domain.Alerter
	audit     domain.AuditStore
	logger    *slog.Logger

	failures int
	sleep    func(ctx context.Context, d time.Duration) error
}

// DriverDeps are the collaborators of a Driver. Everything except Engine
// may be nil.
type DriverDeps struct {
	Engine    CycleEngine
	Locks     domain.LockManager
	Recorder  recorder.Recorder
	Publisher Publisher
	// Streams receives every order event on the market's durable stream.
	Streams domain.SignalBus
	Alerter domain.Alerter
	Audit   domain.AuditStore
	Logger  *slog.Logger
}

// NewDriver builds a driver; zero config values fall back to a 5s interval,
// an alert every 10 failures and a 30s lock.
func NewDriver(cfg DriverConfig, deps DriverDeps) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.AlertAfter < 1 {
		cfg.AlertAfter = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	rec := deps.Recorder
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		engine:    deps.Engine,
		cfg:       cfg,
		locks:     deps.Locks,
		recorder:  rec,
		publisher: deps.Publisher,
		streams:   deps.Streams,
		alerter:   deps.Alerter,
		audit:     deps.Audit,
		logger: logger.With(
			slog.String("component", "driver"),
			slog.String("market", cfg.Market),
		),
		sleep: sleepCtx,
	}
}

// LockKey names the lock guarding one market.
func LockKey(market string) string { return "lazywhale:" + market }

// Run blocks until the strategy stops, fails fatally or ctx is cancelled.
// A requested stop and a cancelled context return nil.
func (d *Driver) Run(ctx context.Context) error {
	if d.locks == nil {
		return d.loop(ctx)
	}

	lock, err := d.locks.Acquire(ctx, LockKey(d.cfg.Market), d.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("driver: lock %s: %w", d.cfg.Market, err)
	}
	defer lock.Release()
	d.logger.InfoContext(ctx, "market lock acquired", slog.Duration("ttl", d.cfg.LockTTL))

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopRefresh := context.WithCancel(gctx)
	g.Go(func() error {
		defer stopRefresh()
		return d.loop(loopCtx)
	})
	g.Go(func() error {
		return d.refresh(loopCtx, lock)
	})
	return g.Wait()
}

// refresh extends the lock at a third of its TTL. Losing the lock ends the
// run so two processes never drive the same market.
func (d *Driver) refresh(ctx context.Context, lock domain.Lock) error {
	ticker := time.NewTicker(d.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lock.Refresh(ctx, d.cfg.LockTTL); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Log(ctx, domain.LevelCritical, "market lock lost", slog.String("error", err.Error()))
				return fmt.Errorf("driver: refresh lock %s: %w", d.cfg.Market, err)
			}
		}
	}
}

func (d *Driver) loop(ctx context.Context) error {
	if err := d.init(ctx); err != nil {
		return d.terminal(ctx, err)
	}
	if ctx.Err() != nil {
		return nil
	}
	d.auditLog(ctx, "strategy.start", nil)

	for {
		if err := d.sleep(ctx, d.cfg.Interval); err != nil {
			return nil
		}
		rep, err := d.engine.Cycle(ctx)
		if rep.ID != "" {
			d.report(ctx, rep)
		}
		if err == nil {
			d.succeeded()
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrStopRequested) || domain.IsFatal(err) {
			return d.terminal(ctx, err)
		}
		d.failed(ctx, "cycle", err)
	}
}

// init retries Init on transient failures at the cycle interval.
func (d *Driver) init(ctx context.Context) error {
	for {
		err := d.engine.Init(ctx)
		if err == nil {
			d.succeeded()
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrStopRequested) || domain.IsFatal(err) {
			return err
		}
		d.failed(ctx, "init", err)
		if err := d.sleep(ctx, d.cfg.Interval); err != nil {
			return nil
		}
	}
}

// terminal maps a stop to nil and dumps the ladder for fatal errors.
func (d *Driver) terminal(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStopRequested) {
		d.logger.InfoContext(ctx, "strategy stopped", slog.String("reason", err.Error()))
		d.auditLog(ctx, "strategy.stop", map[string]any{"reason": err.Error()})
		return nil
	}

	d.logger.Log(ctx, domain.LevelCritical, "strategy terminated",
		slog.String("error", err.Error()),
		slog.Any("ladder", d.engine.LadderState()),
	)
	d.auditLog(ctx, "strategy.fatal", map[string]any{"error": err.Error()})
	d.alert(ctx, domain.SeverityCritical, "lazywhale "+d.cfg.Market+" terminated", err.Error())
	return err
}

func (d *Driver) succeeded() {
	d.failures = 0
	metrics.ConsecutiveFailures.WithLabelValues(d.cfg.Market).Set(0)
}

// failed counts a recoverable failure and alerts at AlertAfter and every
// further multiple.
func (d *Driver) failed(ctx context.Context, op string, err error) {
	d.failures++
	metrics.ConsecutiveFailures.WithLabelValues(d.cfg.Market).Set(float64(d.failures))
	d.logger.ErrorContext(ctx, op+" failed",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", d.failures),
	)
	if d.failures%d.cfg.AlertAfter == 0 {
		d.alert(ctx, domain.SeverityWarning,
			fmt.Sprintf("lazywhale %s: %d consecutive failures", d.cfg.Market, d.failures),
			err.Error())
	}
}

func (d *Driver) alert(ctx context.Context, sev domain.Severity, title, msg string) {
	if d.alerter == nil {
		return
	}
	if err := d.alerter.Alert(ctx, sev, title, msg); err != nil {
		d.logger.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
	}
}

func (d *Driver) auditLog(ctx context.Context, event string, detail map[string]any) {
	if d.audit == nil {
		return
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["market"] = d.cfg.Market
	if err := d.audit.Log(ctx, event, detail); err != nil {
		d.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// report records the cycle and forwards it and its order events. Failures
// here never affect the strategy.
func (d *Driver) report(ctx context.Context, rep domain.CycleReport) {
	if err := d.recorder.RecordCycle(ctx, rep); err != nil {
		d.logger.WarnContext(ctx, "record cycle failed", slog.String("error", err.Error()))
	}
	if rep.Boundary != "" {
		d.auditLog(ctx, "strategy.boundary", map[string]any{"edge": rep.Boundary, "cycle": rep.ID})
	}

	events := rep.Events
	rep.Events = nil
	if d.publisher != nil {
		if b, err := json.Marshal(rep); err == nil {
			d.publish(ctx, redis.CycleChannel(d.cfg.Market), b)
		}
	}
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if d.publisher != nil {
			d.publish(ctx, redis.OrdersChannel(d.cfg.Market), b)
		}
		if d.streams != nil {
			if err := d.streams.StreamAppend(ctx, redis.OrdersStream(d.cfg.Market), b); err != nil {
				d.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (d *Driver) publish(ctx context.Context, channel string, b []byte) {
	if err := d.publisher.Publish(ctx, channel, b); err != nil {
		d.logger.WarnContext(ctx, "publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
