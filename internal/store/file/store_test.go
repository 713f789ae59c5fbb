package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestParamsRoundTripAsDecimalStrings(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec := domain.ParamsRecord{
		Datetime:        "2024-03-01 12:00:00",
		Marketplace:     "paper",
		Market:          "ETH/BTC",
		RangeBot:        decimal.RequireFromString("0.01"),
		RangeTop:        decimal.RequireFromString("0.015"),
		SpreadBot:       decimal.RequireFromString("0.01051"),
		SpreadTop:       decimal.RequireFromString("0.01083"),
		IncrementCoef:   decimal.RequireFromString("1.0102"),
		Amount:          decimal.RequireFromString("0.02"),
		NbBuyToDisplay:  6,
		NbSellToDisplay: 5,
		ProfitsAlloc:    decimal.Zero,
	}
	require.NoError(t, s.SaveParams(ctx, rec))

	raw, err := os.ReadFile(filepath.Join(s.MarketDir("ETH/BTC"), paramsFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"increment_coef": "1.0102"`)
	assert.Contains(t, string(raw), `"nb_buy_to_display": "6"`)

	got, err := s.LoadParams(ctx, "ETH/BTC")
	require.NoError(t, err)
	assert.True(t, got.IncrementCoef.Equal(rec.IncrementCoef))
	assert.Equal(t, 5, got.NbSellToDisplay)
	assert.True(t, strings.HasSuffix(s.MarketDir("ETH/BTC"), "ETH-BTC"))
}

func TestMissingFilesAreNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.LoadParams(context.Background(), "ETH/BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.LoadSnapshot(context.Background(), "ETH/BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	evs, err := s.RecentEvents(context.Background(), "ETH/BTC", 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestEventsAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	o := domain.NewOrder("o1", domain.SideBuy, decimal.RequireFromString("0.0105"), decimal.RequireFromString("0.02"), decimal.NewFromInt(1), testTime)
	var evs []domain.OrderEvent
	for i := 0; i < 5; i++ {
		evs = append(evs, domain.NewOrderEvent("ETH/BTC", domain.EventPlaced, o, o.Amount, testTime.Add(time.Duration(i)*time.Hour)))
	}
	require.NoError(t, s.AppendEvents(ctx, evs[:3]))
	require.NoError(t, s.AppendEvents(ctx, evs[3:]))

	recent, err := s.RecentEvents(ctx, "ETH/BTC", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, evs[4].Timestamp, recent[1].Timestamp)

	ranged, err := s.ListEvents(ctx, "ETH/BTC", testTime.Add(time.Hour), testTime.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	raw, err := os.ReadFile(s.EventsPath("ETH/BTC"))
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(raw), "\n"))
	assert.Contains(t, string(raw), `"amount":"0.02"`)
}

func TestTornLineSkipped(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	o := domain.NewOrder("o1", domain.SideSell, decimal.RequireFromString("0.012"), decimal.RequireFromString("0.02"), decimal.NewFromInt(1), testTime)
	require.NoError(t, s.AppendEvents(ctx, []domain.OrderEvent{domain.NewOrderEvent("ETH/BTC", domain.EventConsumed, o, o.Amount, testTime)}))

	f, err := os.OpenFile(s.EventsPath("ETH/BTC"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"market":"ETH/BTC","event":"pla`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	evs, err := s.RecentEvents(ctx, "ETH/BTC", 10)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestSnapshotReplacedAtomically(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	snap := domain.LadderSnapshot{
		Market:    "ETH/BTC",
		SavedAt:   testTime,
		SpreadBot: 5,
		SpreadTop: 8,
		Intervals: []domain.IntervalState{{
			Bottom: decimal.RequireFromString("0.01"),
			Top:    decimal.RequireFromString("0.010102"),
		}},
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))
	snap.SpreadBot = 4
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LoadSnapshot(ctx, "ETH/BTC")
	require.NoError(t, err)
	assert.Equal(t, 4, got.SpreadBot)
	assert.True(t, got.Intervals[0].Top.Equal(snap.Intervals[0].Top))

	_, err = os.Stat(s.SnapshotPath("ETH/BTC") + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
