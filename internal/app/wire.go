package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/lazywhale/internal/blob/s3"
	"github.com/alanyoungcy/lazywhale/internal/cache/redis"
	"github.com/alanyoungcy/lazywhale/internal/config"
	"github.com/alanyoungcy/lazywhale/internal/crypto"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/executor"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
	"github.com/alanyoungcy/lazywhale/internal/notify"
	"github.com/alanyoungcy/lazywhale/internal/platform"
	"github.com/alanyoungcy/lazywhale/internal/platform/paper"
	"github.com/alanyoungcy/lazywhale/internal/platform/rest"
	"github.com/alanyoungcy/lazywhale/internal/recorder"
	"github.com/alanyoungcy/lazywhale/internal/server/handler"
	"github.com/alanyoungcy/lazywhale/internal/store"
	"github.com/alanyoungcy/lazywhale/internal/store/file"
	"github.com/alanyoungcy/lazywhale/internal/store/postgres"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

// Dependencies bundles everything the modes need. Optional backends are nil
// when they are not configured.
type Dependencies struct {
	Params strategy.Params

	// State: the file store is always the primary; Postgres mirrors it.
	Files *file.Store
	Store domain.StateStore
	Audit domain.AuditStore

	// Coordination (Redis).
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archive (S3).
	Archiver *s3blob.ArchiveImpl

	Recorder recorder.Recorder
	Notifier *notify.Notifier

	// Venue is the executor-wrapped connector; nil in archive mode.
	Venue    domain.Venue
	Executor *executor.Executor

	// Pings are reported by the health endpoint.
	Pings map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	params, err := cfg.StrategyParams()
	if err != nil {
		return fail(fmt.Errorf("wire: strategy: %w", err))
	}
	deps := &Dependencies{Params: params, Pings: make(map[string]handler.Pinger)}

	// --- Local state (always) ---
	files, err := file.New(cfg.Store.Dir)
	if err != nil {
		return fail(fmt.Errorf("wire: file store: %w", err))
	}
	deps.Files = files

	// --- PostgreSQL mirror + audit log ---
	var mirrors []domain.StateStore
	if cfg.Postgres.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		mirrors = append(mirrors, postgres.NewStateStore(pgClient.Pool()))
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
		deps.Pings["postgres"] = pgClient
	}
	deps.Store = store.NewTee(files, logger, mirrors...)

	// --- Redis ---
	if cfg.Redis.Enabled() {
		var redisClient *redis.Client
		if cfg.Redis.URL != "" {
			redisClient, err = redis.NewFromURL(ctx, cfg.Redis.URL)
		} else {
			redisClient, err = redis.New(ctx, redis.ClientConfig{
				Addr:       cfg.Redis.Addr,
				Password:   cfg.Redis.Password,
				DB:         cfg.Redis.DB,
				PoolSize:   cfg.Redis.PoolSize,
				MaxRetries: cfg.Redis.MaxRetries,
				TLSEnabled: cfg.Redis.TLSEnabled,
			})
		}
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Pings["redis"] = redisClient
	}

	// --- S3 archive ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Store,
			deps.Audit,
		)
	}

	// --- Cycle history ---
	if cfg.Recorder.Path != "" {
		rec, err := recorder.NewSQLiteRecorder(cfg.Recorder.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: recorder: %w", err))
		}
		closers = append(closers, func() { _ = rec.Close() })
		deps.Recorder = rec
	} else {
		deps.Recorder = recorder.NewNoopRecorder()
	}

	// --- Notifications ---
	minSev, err := notify.ParseSeverity(cfg.Notify.MinSeverity)
	if err != nil {
		return fail(fmt.Errorf("wire: notify: %w", err))
	}
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, ""))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.SlackWebhookURL != "" {
		senders = append(senders, notify.NewSlackSender(cfg.Notify.SlackWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, minSev, logger)

	// --- Venue ---
	if cfg.Mode != "archive" {
		venue, err := buildVenue(cfg, params)
		if err != nil {
			return fail(fmt.Errorf("wire: venue: %w", err))
		}
		deps.Executor = executor.New(venue, deps.RateLimiter, executor.Config{
			MaxAttempts:   cfg.Executor.MaxAttempts,
			Backoff:       cfg.Executor.Backoff.Duration,
			RateLimit:     cfg.Executor.RateLimit,
			RateWindow:    cfg.Executor.RateWindow.Duration,
			ConfirmWindow: cfg.Executor.ConfirmWindow.Duration,
		}, logger)
		deps.Venue = deps.Executor
	}

	return deps, cleanup, nil
}

// buildVenue selects the connector. Paper mode always trades against the
// simulation regardless of venue.kind.
func buildVenue(cfg *config.Config, p strategy.Params) (domain.Venue, error) {
	kind, err := platform.ParseKind(cfg.Venue.Kind)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == "paper" {
		kind = platform.KindPaper
	}

	opts := platform.Options{}
	switch kind {
	case platform.KindPaper:
		opts.Paper, err = paperConfig(cfg.Paper, p)
		if err != nil {
			return nil, err
		}
	case platform.KindREST:
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Venue.APISecret,
			EncryptedPath: cfg.Venue.EncryptedSecretPath,
			Password:      cfg.Venue.SecretPassword,
		})
		if err != nil {
			if errors.Is(err, crypto.ErrNoSecret) {
				return nil, domain.NewConfigurationError("venue.api_secret", "required for the rest venue")
			}
			return nil, err
		}
		opts.REST = rest.Config{
			BaseURL: cfg.Venue.BaseURL,
			Timeout: cfg.Venue.Timeout.Duration,
			FeeCoef: p.FeeCoef,
		}
		opts.Auth = &crypto.HMACAuth{
			Key:        cfg.Venue.APIKey,
			Secret:     secret,
			Passphrase: cfg.Venue.Passphrase,
		}
	}
	return platform.New(kind, opts)
}

// paperConfig seeds the simulation. Without a start price it opens in the
// middle of the configured spread gap.
func paperConfig(c config.PaperConfig, p strategy.Params) (paper.Config, error) {
	out := paper.Config{
		Market:         p.Market,
		MinOrderAmount: p.MinOrderAmount,
		Seed:           c.Seed,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"paper.start_price", c.StartPrice, &out.StartPrice},
		{"paper.base_balance", c.BaseBalance, &out.BaseBalance},
		{"paper.quote_balance", c.QuoteBalance, &out.QuoteBalance},
		{"paper.volatility", c.Volatility, &out.Volatility},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := fixed.Parse(f.raw)
		if err != nil {
			return paper.Config{}, domain.NewConfigurationError(f.name, "malformed decimal %q", f.raw)
		}
		*f.dst = v
	}

	if out.StartPrice.IsZero() {
		lad, err := p.Ladder()
		if err != nil {
			return paper.Config{}, err
		}
		mid := lad.At(p.SpreadBot + 1)
		out.StartPrice = fixed.Quantize(mid.Bottom().Add(mid.Top()).Div(decimal.NewFromInt(2)))
	}
	return out, nil
}
