// Package store composes the state stores: a primary that must succeed
// and optional mirrors whose failures are only logged.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Tee writes to the primary first and then to every mirror. Reads only go
// to the primary.
type Tee struct {
	primary domain.StateStore
	mirrors []domain.StateStore
	logger  *slog.Logger
}

// NewTee builds a Tee. A nil logger discards mirror failures silently.
func NewTee(primary domain.StateStore, logger *slog.Logger, mirrors ...domain.StateStore) *Tee {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tee{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With(slog.String("component", "state_store")),
	}
}

func (t *Tee) SaveParams(ctx context.Context, rec domain.ParamsRecord) error {
	if err := t.primary.SaveParams(ctx, rec); err != nil {
		return err
	}
	t.mirror(ctx, "save_params", func(m domain.StateStore) error { return m.SaveParams(ctx, rec) })
	return nil
}

func (t *Tee) LoadParams(ctx context.Context, market string) (domain.ParamsRecord, error) {
	return t.primary.LoadParams(ctx, market)
}

func (t *Tee) AppendEvents(ctx context.Context, events []domain.OrderEvent) error {
	if err := t.primary.AppendEvents(ctx, events); err != nil {
		return err
	}
	t.mirror(ctx, "append_events", func(m domain.StateStore) error { return m.AppendEvents(ctx, events) })
	return nil
}

func (t *Tee) RecentEvents(ctx context.Context, market string, limit int) ([]domain.OrderEvent, error) {
	return t.primary.RecentEvents(ctx, market, limit)
}

func (t *Tee) ListEvents(ctx context.Context, market string, from, to time.Time) ([]domain.OrderEvent, error) {
	return t.primary.ListEvents(ctx, market, from, to)
}

func (t *Tee) SaveSnapshot(ctx context.Context, snap domain.LadderSnapshot) error {
	if err := t.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	t.mirror(ctx, "save_snapshot", func(m domain.StateStore) error { return m.SaveSnapshot(ctx, snap) })
	return nil
}

func (t *Tee) LoadSnapshot(ctx context.Context, market string) (domain.LadderSnapshot, error) {
	return t.primary.LoadSnapshot(ctx, market)
}

func (t *Tee) mirror(ctx context.Context, op string, fn func(domain.StateStore) error) {
	for i, m := range t.mirrors {
		if err := fn(m); err != nil {
			t.logger.WarnContext(ctx, "mirror write failed",
				slog.String("op", op),
				slog.Int("mirror", i),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ domain.StateStore = (*Tee)(nil)
