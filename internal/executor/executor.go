// Package executor wraps a venue connector with rate limiting, retries and
// the one-request-per-operation guard the reconciliation engine relies on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/metrics"
)

// ErrInFlight is returned when the same logical operation is already
// outstanding.
var ErrInFlight = errors.New("executor: operation already in flight")

// Config tunes retries and rate limiting.
type Config struct {
	MaxAttempts int
	Backoff     time.Duration
	// RateLimit requests per RateWindow; zero disables limiting.
	RateLimit   int
	RateWindow  time.Duration
	InFlightTTL time.Duration
	// ConfirmWindow is how far back an order timestamp may be when it is
	// adopted by confirm-then-retry.
	ConfirmWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	if c.InFlightTTL <= 0 {
		c.InFlightTTL = 2 * time.Minute
	}
	if c.ConfirmWindow <= 0 {
		c.ConfirmWindow = time.Minute
	}
	return c
}

// Executor is a domain.Venue decorator. Transient failures are retried
// with a fixed backoff; rejected orders are returned immediately; a
// placement that failed transiently is first looked up on the venue and
// adopted if it landed.
type Executor struct {
	venue   domain.Venue
	limiter domain.RateLimiter
	guard   *InFlight
	issued  *issuedSet
	known   func(orderID string) bool
	cfg     Config
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New wraps venue. limiter may be nil.
func New(venue domain.Venue, limiter domain.RateLimiter, cfg Config, logger *slog.Logger) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		venue:   venue,
		limiter: limiter,
		guard:   NewInFlight(cfg.InFlightTTL),
		issued:  newIssuedSet(8192),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// SetKnown tells confirm-then-retry which order ids already belong to the
// caller so they are never adopted as a lost placement.
func (e *Executor) SetKnown(known func(orderID string) bool) {
	e.known = known
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

func (e *Executor) Name() string { return e.venue.Name() }

func (e *Executor) OpenOrders(ctx context.Context, market string) ([]domain.Order, error) {
	return retry(ctx, e, "open_orders", func() ([]domain.Order, error) {
		return e.venue.OpenOrders(ctx, market)
	})
}

func (e *Executor) TradeHistory(ctx context.Context, market string) ([]domain.Trade, error) {
	return retry(ctx, e, "trade_history", func() ([]domain.Trade, error) {
		return e.venue.TradeHistory(ctx, market)
	})
}

func (e *Executor) LastPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	return retry(ctx, e, "last_price", func() (decimal.Decimal, error) {
		return e.venue.LastPrice(ctx, market)
	})
}

func (e *Executor) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	return retry(ctx, e, "balances", func() (map[string]domain.Balance, error) {
		return e.venue.Balances(ctx)
	})
}

// PlaceLimitOrder places one order with confirm-then-retry. Every attempt
// carries the same client order id.
func (e *Executor) PlaceLimitOrder(ctx context.Context, market string, side domain.Side, amount, price decimal.Decimal) (domain.Order, error) {
	key := fmt.Sprintf("place:%s:%s:%s", market, side, price)
	if !e.guard.Acquire(key) {
		return domain.Order{}, domain.Transient(fmt.Errorf("%w: %s", ErrInFlight, key))
	}
	defer e.guard.Release(key)

	clientID := domain.ClientOrderID(ctx)
	if clientID == "" {
		clientID = uuid.NewString()
		ctx = domain.WithClientOrderID(ctx, clientID)
	}

	log := e.logger.With(
		slog.String("market", market),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
		slog.String("amount", amount.String()),
		slog.String("client_id", clientID),
	)
	started := e.now()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.wait(ctx); err != nil {
			return domain.Order{}, err
		}
		o, err := e.venue.PlaceLimitOrder(ctx, market, side, amount, price)
		if err == nil {
			e.issued.add(o.ID)
			return o, nil
		}
		metrics.VenueErrors.WithLabelValues("place", metrics.ErrorClass(err)).Inc()
		if !errors.Is(err, domain.ErrTransientVenue) {
			return domain.Order{}, err
		}
		lastErr = err
		log.Warn("place failed, confirming before retry",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if err := e.sleep(ctx, e.cfg.Backoff); err != nil {
			return domain.Order{}, err
		}

		landed, ok, err := e.confirm(ctx, market, side, amount, price, clientID, started)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			log.Info("adopted order that landed despite the error", slog.String("order_id", landed.ID))
			e.issued.add(landed.ID)
			return landed, nil
		}
	}
	return domain.Order{}, fmt.Errorf("executor: place after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// confirm looks for the open order of the failed request. An order with a
// client id is adopted only when the id is ours. Without one the side,
// price and amount must match exactly and the id must be unknown to the
// caller.
func (e *Executor) confirm(ctx context.Context, market string, side domain.Side, amount, price decimal.Decimal, clientID string, since time.Time) (domain.Order, bool, error) {
	if err := e.wait(ctx); err != nil {
		return domain.Order{}, false, err
	}
	open, err := e.venue.OpenOrders(ctx, market)
	if err != nil {
		metrics.VenueErrors.WithLabelValues("open_orders", metrics.ErrorClass(err)).Inc()
		return domain.Order{}, false, err
	}
	cutoff := since.Add(-e.cfg.ConfirmWindow).UnixMilli()
	for _, o := range open {
		if o.ClientID != "" {
			if o.ClientID == clientID {
				return o, true, nil
			}
			continue
		}
		if o.Side != side || !o.Price.Equal(price) || !o.Amount.Equal(amount) {
			continue
		}
		if e.issued.has(o.ID) || (e.known != nil && e.known(o.ID)) {
			continue
		}
		if o.Timestamp != 0 && o.Timestamp < cutoff {
			continue
		}
		return o, true, nil
	}
	return domain.Order{}, false, nil
}

// CancelOrder cancels with retries. false means the order was already gone.
func (e *Executor) CancelOrder(ctx context.Context, market, orderID string) (bool, error) {
	key := "cancel:" + orderID
	if !e.guard.Acquire(key) {
		return false, domain.Transient(fmt.Errorf("%w: %s", ErrInFlight, key))
	}
	defer e.guard.Release(key)

	return retry(ctx, e, "cancel", func() (bool, error) {
		return e.venue.CancelOrder(ctx, market, orderID)
	})
}

func (e *Executor) wait(ctx context.Context) error {
	if e.limiter == nil || e.cfg.RateLimit <= 0 {
		return nil
	}
	if err := e.limiter.Wait(ctx, "venue:"+e.venue.Name(), e.cfg.RateLimit, e.cfg.RateWindow); err != nil {
		return fmt.Errorf("executor: rate limit: %w", err)
	}
	return nil
}

func retry[T any](ctx context.Context, e *Executor, op string, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.wait(ctx); err != nil {
			return zero, err
		}
		v, err := call()
		if err == nil {
			return v, nil
		}
		metrics.VenueErrors.WithLabelValues(op, metrics.ErrorClass(err)).Inc()
		if !errors.Is(err, domain.ErrTransientVenue) {
			return zero, err
		}
		lastErr = err
		e.logger.Warn("venue call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < e.cfg.MaxAttempts {
			if err := e.sleep(ctx, e.cfg.Backoff); err != nil {
				return zero, err
			}
		}
	}
	return zero, fmt.Errorf("executor: %s after %d attempts: %w", op, e.cfg.MaxAttempts, lastErr)
}

var _ domain.Venue = (*Executor)(nil)
