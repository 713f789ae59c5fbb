// Package file keeps the strategy state on local disk: the parameters
// record and the latest snapshot as JSON documents replaced atomically, and
// the order events as an append-only JSON Lines log. It is the source of
// truth on restart.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

const (
	paramsFile   = "params.json"
	eventsFile   = "events.jsonl"
	snapshotFile = "snapshot.json"
)

// Store implements domain.StateStore under one directory, with one
// sub-directory per market.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates dir if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, domain.NewConfigurationError("store.dir", "required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir is the root directory.
func (s *Store) Dir() string { return s.dir }

// MarketDir is where the files of market live. "ETH/BTC" becomes
// "ETH-BTC".
func (s *Store) MarketDir(market string) string {
	slug := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "_").Replace(market)
	return filepath.Join(s.dir, slug)
}

// EventsPath is the JSON Lines log of market.
func (s *Store) EventsPath(market string) string {
	return filepath.Join(s.MarketDir(market), eventsFile)
}

// SnapshotPath is the latest snapshot of market.
func (s *Store) SnapshotPath(market string) string {
	return filepath.Join(s.MarketDir(market), snapshotFile)
}

func (s *Store) SaveParams(_ context.Context, rec domain.ParamsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.MarketDir(rec.Market), paramsFile), rec)
}

func (s *Store) LoadParams(_ context.Context, market string) (domain.ParamsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec domain.ParamsRecord
	if err := readJSON(filepath.Join(s.MarketDir(market), paramsFile), &rec); err != nil {
		return domain.ParamsRecord{}, err
	}
	return rec, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap domain.LadderSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.SnapshotPath(snap.Market), snap)
}

func (s *Store) LoadSnapshot(_ context.Context, market string) (domain.LadderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap domain.LadderSnapshot
	if err := readJSON(s.SnapshotPath(market), &snap); err != nil {
		return domain.LadderSnapshot{}, err
	}
	return snap, nil
}

// AppendEvents writes one JSON object per line and syncs the file.
func (s *Store) AppendEvents(_ context.Context, events []domain.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byMarket := make(map[string][]domain.OrderEvent)
	for _, ev := range events {
		byMarket[ev.Market] = append(byMarket[ev.Market], ev)
	}
	for market, evs := range byMarket {
		if err := appendLines(s.EventsPath(market), evs); err != nil {
			return err
		}
	}
	return nil
}

func appendLines(path string, events []domain.OrderEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("file: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("file: open %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("file: encode event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("file: write %s: %w", path, err)
	}
	return f.Sync()
}

// RecentEvents returns the last limit events of market, oldest first.
func (s *Store) RecentEvents(_ context.Context, market string, limit int) ([]domain.OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OrderEvent
	err := scanEvents(s.EventsPath(market), func(ev domain.OrderEvent) {
		out = append(out, ev)
		if len(out) > limit {
			out = out[1:]
		}
	})
	return out, err
}

// ListEvents returns the events of market with from <= timestamp < to.
func (s *Store) ListEvents(_ context.Context, market string, from, to time.Time) ([]domain.OrderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := from.UnixMilli(), to.UnixMilli()
	var out []domain.OrderEvent
	err := scanEvents(s.EventsPath(market), func(ev domain.OrderEvent) {
		if ev.Timestamp >= lo && ev.Timestamp < hi {
			out = append(out, ev)
		}
	})
	return out, err
}

// scanEvents calls fn for every decodable line. A missing log is empty; a
// torn last line from a crash mid-write is skipped.
func scanEvents(path string, fn func(domain.OrderEvent)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("file: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev domain.OrderEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		fn(ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("file: read %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("file: create dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode %s: %w", filepath.Base(path), err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("file: replace %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("file: %s: %w", filepath.Base(path), domain.ErrNotFound)
		}
		return fmt.Errorf("file: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("file: parse %s: %w", path, err)
	}
	return nil
}

var _ domain.StateStore = (*Store)(nil)
