package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// SQLiteRecorder writes one row per cycle. Amounts are stored as decimal
// text.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens or creates the database at path.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL lets readers query while the strategy writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id       TEXT NOT NULL,
			market         TEXT NOT NULL,
			started_at     INTEGER NOT NULL,
			duration_ms    INTEGER NOT NULL,
			fetched        INTEGER,
			foreign_orders INTEGER,
			consumed_buy   TEXT,
			consumed_sell  TEXT,
			opened_buy     TEXT,
			opened_sell    TEXT,
			placed         INTEGER,
			cancelled      INTEGER,
			remaining_buy  TEXT,
			remaining_sell TEXT,
			spread_bot     INTEGER,
			spread_top     INTEGER,
			buy_intervals  INTEGER,
			sell_intervals INTEGER,
			boundary       TEXT,
			noop           INTEGER,
			error          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_market_ts ON cycles(market, started_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(ctx context.Context, rep domain.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO cycles
		(cycle_id, market, started_at, duration_ms, fetched, foreign_orders,
		 consumed_buy, consumed_sell, opened_buy, opened_sell, placed, cancelled,
		 remaining_buy, remaining_sell, spread_bot, spread_top,
		 buy_intervals, sell_intervals, boundary, noop, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.Market, rep.StartedAt.UnixMilli(), rep.Duration.Milliseconds(),
		rep.Fetched, rep.Foreign,
		rep.ConsumedBuy.String(), rep.ConsumedSell.String(),
		rep.OpenedBuy.String(), rep.OpenedSell.String(),
		rep.Placed, rep.Cancelled,
		rep.RemainingBuy.String(), rep.RemainingSell.String(),
		rep.SpreadBot, rep.SpreadTop, rep.BuyIntervals, rep.SellIntervals,
		rep.Boundary, rep.NoOp, rep.Err,
	)
	if err != nil {
		return fmt.Errorf("recorder: insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest limit cycles of market, newest first.
func (r *SQLiteRecorder) RecentCycles(ctx context.Context, market string, limit int) ([]domain.CycleReport, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT
		cycle_id, market, started_at, duration_ms, fetched, foreign_orders,
		consumed_buy, consumed_sell, opened_buy, opened_sell, placed, cancelled,
		remaining_buy, remaining_sell, spread_bot, spread_top,
		buy_intervals, sell_intervals, boundary, noop, error
		FROM cycles WHERE market = ? ORDER BY id DESC LIMIT ?`, market, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query cycles: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleReport
	for rows.Next() {
		var (
			rep                      domain.CycleReport
			startedMs, durMs         int64
			cb, cs, ob, obs, rb, rbs string
		)
		if err := rows.Scan(&rep.ID, &rep.Market, &startedMs, &durMs, &rep.Fetched, &rep.Foreign,
			&cb, &cs, &ob, &obs, &rep.Placed, &rep.Cancelled, &rb, &rbs,
			&rep.SpreadBot, &rep.SpreadTop, &rep.BuyIntervals, &rep.SellIntervals,
			&rep.Boundary, &rep.NoOp, &rep.Err); err != nil {
			return nil, fmt.Errorf("recorder: scan cycle: %w", err)
		}
		rep.StartedAt = time.UnixMilli(startedMs).UTC()
		rep.Duration = time.Duration(durMs) * time.Millisecond
		for dst, src := range map[*decimal.Decimal]string{
			&rep.ConsumedBuy: cb, &rep.ConsumedSell: cs,
			&rep.OpenedBuy: ob, &rep.OpenedSell: obs,
			&rep.RemainingBuy: rb, &rep.RemainingSell: rbs,
		} {
			if *dst, err = decimal.NewFromString(src); err != nil {
				return nil, fmt.Errorf("recorder: parse amount %q: %w", src, err)
			}
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

var (
	_ Recorder = (*SQLiteRecorder)(nil)
	_ Recorder = NoopRecorder{}
)
