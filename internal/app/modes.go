package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/scheduler"
	"github.com/alanyoungcy/lazywhale/internal/server"
	"github.com/alanyoungcy/lazywhale/internal/server/handler"
	"github.com/alanyoungcy/lazywhale/internal/server/ws"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

// StrategyMode drives the ladder of the configured market. Next to the
// driver it runs the websocket hub, the HTTP server and the archive
// scheduler when they are configured. It returns when the driver ends.
func (a *App) StrategyMode(ctx context.Context, deps *Dependencies) error {
	market := deps.Params.Market
	a.logger.InfoContext(ctx, "starting strategy mode",
		slog.String("market", market),
		slog.String("venue", deps.Venue.Name()),
	)

	a.seedSnapshot(ctx, deps)

	engine, err := strategy.NewEngine(deps.Params, strategy.Deps{
		Venue:   deps.Venue,
		Store:   deps.Store,
		Alerter: deps.Notifier,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: engine: %w", err)
	}
	if deps.Executor != nil {
		deps.Executor.SetKnown(engine.Knows)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// With the Redis bus enabled the driver publishes to Redis and the hub
	// relays from it; otherwise the driver feeds the hub directly.
	var hubBus domain.SignalBus
	if a.cfg.Redis.Bus {
		hubBus = deps.SignalBus
	}
	hub := ws.NewHub(hubBus, ws.Config{
		Market: market,
		Status: func() any { return engine.Status() },
	}, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	var publisher Publisher = hubPublisher{hub: hub}
	if hubBus != nil {
		publisher = hubBus
	}

	driver := NewDriver(DriverConfig{
		Market:     market,
		Interval:   a.cfg.CycleInterval.Duration,
		AlertAfter: a.cfg.AlertAfter,
		LockTTL:    a.cfg.Redis.LockTTL.Duration,
	}, DriverDeps{
		Engine:    engine,
		Locks:     deps.LockManager,
		Recorder:  deps.Recorder,
		Publisher: publisher,
		Streams:   deps.SignalBus,
		Alerter:   deps.Notifier,
		Audit:     deps.Audit,
		Logger:    a.logger,
	})
	g.Go(func() error {
		defer cancel()
		return driver.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine, hub)
	}

	if deps.Archiver != nil {
		sched := scheduler.New(ctx, deps.Archiver, market, a.logger)
		if err := sched.RegisterAll(scheduler.Config{
			ArchiveCron:  a.cfg.Archive.EventsCron,
			SnapshotCron: a.cfg.Archive.SnapshotCron,
		}); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("app: scheduler: %w", err)
		}
		sched.Start()
		g.Go(func() error {
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}

	return g.Wait()
}

// ArchiveMode uploads one day of order events and the latest snapshot,
// then returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return domain.NewConfigurationError("s3.bucket", "required for archive mode")
	}
	market := deps.Params.Market

	day := time.Now().UTC().Add(-24 * time.Hour)
	if a.cfg.Archive.Day != "" {
		d, err := time.Parse(time.DateOnly, a.cfg.Archive.Day)
		if err != nil {
			return domain.NewConfigurationError("archive.day", "%q is not YYYY-MM-DD", a.cfg.Archive.Day)
		}
		day = d
	}

	sched := scheduler.New(ctx, deps.Archiver, market, a.logger)
	n, err := sched.ArchiveDay(ctx, day)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	if err := deps.Archiver.UploadSnapshot(ctx, market); err != nil {
		return fmt.Errorf("app: archive snapshot: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.String("market", market),
		slog.String("day", day.Format(time.DateOnly)),
		slog.Int64("events", n),
	)
	return nil
}

// seedSnapshot restores the latest archived snapshot when the local state
// directory has none, so a fresh host resumes instead of placing a new
// ladder. Failures only cost the resume.
func (a *App) seedSnapshot(ctx context.Context, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	market := deps.Params.Market
	if _, err := deps.Files.LoadSnapshot(ctx, market); !errors.Is(err, domain.ErrNotFound) {
		return
	}
	snap, err := deps.Archiver.FetchSnapshot(ctx, market)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "fetch archived snapshot failed", slog.String("error", err.Error()))
		}
		return
	}
	if err := deps.Files.SaveSnapshot(ctx, snap); err != nil {
		a.logger.WarnContext(ctx, "seed snapshot failed", slog.String("error", err.Error()))
		return
	}
	a.logger.InfoContext(ctx, "snapshot seeded from archive", slog.Time("saved_at", snap.SavedAt))
}

// startHTTPServer adds the API server to g. It is shut down gracefully when
// the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *strategy.Engine, hub *ws.Hub) {
	market := deps.Params.Market
	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Server.Addr,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pings, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, engine, time.Now().UTC()),
		History: handler.NewHistoryHandler(market, deps.Store, deps.Recorder, deps.Audit, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// hubPublisher feeds the websocket hub directly.
type hubPublisher struct {
	hub *ws.Hub
}

func (p hubPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.hub.Publish(channel, payload)
	return nil
}
