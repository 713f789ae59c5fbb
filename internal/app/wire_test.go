package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/config"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/recorder"
)

func paperTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Dir = t.TempDir()
	cfg.Strategy.Market = testMarket
	cfg.Strategy.RangeBot = "0.01"
	cfg.Strategy.RangeTop = "0.015"
	cfg.Strategy.IncrementCoef = "1.0102"
	cfg.Strategy.Amount = "0.02"
	cfg.Strategy.SpreadBot = "0.0105"
	return &cfg
}

func TestWirePaperWithoutOptionalBackends(t *testing.T) {
	cfg := paperTestConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "paper", deps.Venue.Name())
	assert.Same(t, deps.Executor, deps.Venue)
	assert.NotNil(t, deps.Store)
	assert.Nil(t, deps.Audit)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Pings)
	assert.IsType(t, &recorder.NoopRecorder{}, deps.Recorder)
	assert.Equal(t, 4, deps.Params.SpreadBot)
}

func TestWireSQLiteRecorder(t *testing.T) {
	cfg := paperTestConfig(t)
	cfg.Recorder.Path = filepath.Join(t.TempDir(), "cycles.db")
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, deps.Recorder.RecordCycle(context.Background(), domain.CycleReport{ID: "c1", Market: testMarket}))
	got, err := deps.Recorder.RecentCycles(context.Background(), testMarket, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWireRejectsBadSeverity(t *testing.T) {
	cfg := paperTestConfig(t)
	cfg.Notify.MinSeverity = "loud"
	_, _, err := Wire(context.Background(), cfg, quietLogger)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBuildVenueRESTNeedsSecret(t *testing.T) {
	cfg := paperTestConfig(t)
	cfg.Mode = "run"
	cfg.Venue.Kind = "rest"
	cfg.Venue.BaseURL = "https://venue.example"
	cfg.Venue.APIKey = "key"
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	_, err = buildVenue(cfg, params)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "venue.api_secret", cfgErr.Field)

	cfg.Venue.APISecret = "c2VjcmV0"
	v, err := buildVenue(cfg, params)
	require.NoError(t, err)
	assert.Equal(t, "rest", v.Name())
}

func TestPaperConfigStartsInsideSpreadGap(t *testing.T) {
	cfg := paperTestConfig(t)
	params, err := cfg.StrategyParams()
	require.NoError(t, err)
	lad, err := params.Ladder()
	require.NoError(t, err)

	pc, err := paperConfig(cfg.Paper, params)
	require.NoError(t, err)
	assert.True(t, pc.StartPrice.GreaterThan(lad.At(params.SpreadBot).Top()))
	assert.True(t, pc.StartPrice.LessThan(lad.At(params.SpreadTop).Bottom()))
	assert.Equal(t, "100", pc.BaseBalance.String())

	_, err = paperConfig(config.PaperConfig{Volatility: "fast"}, params)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
