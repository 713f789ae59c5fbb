package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// StateStore implements domain.StateStore using PostgreSQL.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// SaveParams upserts the parameter record of its market.
func (s *StateStore) SaveParams(ctx context.Context, rec domain.ParamsRecord) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal params %s: %w", rec.Market, err)
	}
	const query = `
		INSERT INTO strategy_params (market, marketplace, record, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (market) DO UPDATE SET
			marketplace = EXCLUDED.marketplace,
			record = EXCLUDED.record,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, rec.Market, rec.Marketplace, recJSON); err != nil {
		return fmt.Errorf("postgres: save params %s: %w", rec.Market, err)
	}
	return nil
}

// LoadParams returns the record of market or domain.ErrNotFound.
func (s *StateStore) LoadParams(ctx context.Context, market string) (domain.ParamsRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM strategy_params WHERE market = $1`, market).Scan(&recJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParamsRecord{}, domain.ErrNotFound
		}
		return domain.ParamsRecord{}, fmt.Errorf("postgres: load params %s: %w", market, err)
	}
	var rec domain.ParamsRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return domain.ParamsRecord{}, fmt.Errorf("postgres: unmarshal params %s: %w", market, err)
	}
	return rec, nil
}

// AppendEvents inserts the events in one batch.
func (s *StateStore) AppendEvents(ctx context.Context, events []domain.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}
	const query = `
		INSERT INTO order_events (market, event, side, order_id, price, amount, ts, datetime)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)`

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(query,
			ev.Market, string(ev.Event), string(ev.Side), ev.OrderID,
			ev.Price.String(), ev.Amount.String(), ev.Timestamp, ev.Datetime,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append order events: %w", err)
		}
	}
	return nil
}

// RecentEvents returns the last limit events of market, oldest first.
func (s *StateStore) RecentEvents(ctx context.Context, market string, limit int) ([]domain.OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT market, event, side, order_id, price::text, amount::text, ts, datetime
		FROM (
			SELECT * FROM order_events WHERE market = $1 ORDER BY id DESC LIMIT $2
		) recent
		ORDER BY id ASC`
	return s.queryEvents(ctx, query, market, limit)
}

// ListEvents returns the events of market with from <= ts < to.
func (s *StateStore) ListEvents(ctx context.Context, market string, from, to time.Time) ([]domain.OrderEvent, error) {
	const query = `
		SELECT market, event, side, order_id, price::text, amount::text, ts, datetime
		FROM order_events
		WHERE market = $1 AND ts >= $2 AND ts < $3
		ORDER BY id ASC`
	return s.queryEvents(ctx, query, market, from.UnixMilli(), to.UnixMilli())
}

func (s *StateStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.OrderEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query order events: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderEvent
	for rows.Next() {
		var (
			ev            domain.OrderEvent
			kind, side    string
			price, amount string
		)
		if err := rows.Scan(&ev.Market, &kind, &side, &ev.OrderID, &price, &amount, &ev.Timestamp, &ev.Datetime); err != nil {
			return nil, fmt.Errorf("postgres: scan order event: %w", err)
		}
		ev.Event, ev.Side = domain.OrderEventKind(kind), domain.Side(side)
		if ev.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse price %q: %w", price, err)
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse amount %q: %w", amount, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: order event rows: %w", err)
	}
	return out, nil
}

// SaveSnapshot appends to the snapshot history.
func (s *StateStore) SaveSnapshot(ctx context.Context, snap domain.LadderSnapshot) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot %s: %w", snap.Market, err)
	}
	const query = `INSERT INTO ladder_snapshots (market, saved_at, snapshot) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, snap.Market, snap.SavedAt, snapJSON); err != nil {
		return fmt.Errorf("postgres: save snapshot %s: %w", snap.Market, err)
	}
	return nil
}

// LoadSnapshot returns the newest snapshot of market.
func (s *StateStore) LoadSnapshot(ctx context.Context, market string) (domain.LadderSnapshot, error) {
	const query = `
		SELECT snapshot FROM ladder_snapshots
		WHERE market = $1
		ORDER BY saved_at DESC, id DESC
		LIMIT 1`
	var snapJSON []byte
	if err := s.pool.QueryRow(ctx, query, market).Scan(&snapJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LadderSnapshot{}, domain.ErrNotFound
		}
		return domain.LadderSnapshot{}, fmt.Errorf("postgres: load snapshot %s: %w", market, err)
	}
	var snap domain.LadderSnapshot
	if err := json.Unmarshal(snapJSON, &snap); err != nil {
		return domain.LadderSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot %s: %w", market, err)
	}
	return snap, nil
}

// PruneSnapshots keeps the newest keep snapshots of market.
func (s *StateStore) PruneSnapshots(ctx context.Context, market string, keep int) (int64, error) {
	const query = `
		DELETE FROM ladder_snapshots
		WHERE market = $1 AND id NOT IN (
			SELECT id FROM ladder_snapshots WHERE market = $1 ORDER BY saved_at DESC, id DESC LIMIT $2
		)`
	tag, err := s.pool.Exec(ctx, query, market, keep)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune snapshots %s: %w", market, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.StateStore = (*StateStore)(nil)
