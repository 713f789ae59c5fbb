package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/metrics"
	"github.com/alanyoungcy/lazywhale/internal/server/handler"
	"github.com/alanyoungcy/lazywhale/internal/store/file"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

type fakeView struct{}

func (fakeView) Status() strategy.Status {
	return strategy.Status{Market: "ETH/BTC", SpreadBot: 4, SpreadTop: 7, Ready: true}
}

func (fakeView) LadderState() []domain.IntervalState {
	return []domain.IntervalState{{
		Bottom: decimal.RequireFromString("0.01"),
		Top:    decimal.RequireFromString("0.010102"),
	}}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyAll) Wait(context.Context, string, int, time.Duration) error          { return nil }

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, apiKey string, checks map[string]handler.Pinger, limiter domain.RateLimiter) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	st, err := file.New(t.TempDir())
	require.NoError(t, err)

	o := domain.NewOrder("o1", domain.SideBuy, decimal.RequireFromString("0.0105"), decimal.RequireFromString("0.02"), decimal.NewFromInt(1), testTime)
	require.NoError(t, st.AppendEvents(context.Background(), []domain.OrderEvent{
		domain.NewOrderEvent("ETH/BTC", domain.EventPlaced, o, o.Amount, testTime),
		domain.NewOrderEvent("ETH/BTC", domain.EventConsumed, o, o.Amount, testTime.Add(time.Hour)),
	}))

	srv := NewServer(Config{Addr: ":0", APIKey: apiKey, RateLimit: 10, RateWindow: time.Second}, Handlers{
		Health:  handler.NewHealthHandler(checks, logger),
		Status:  handler.NewStatusHandler("paper", fakeView{}, testTime),
		History: handler.NewHistoryHandler("ETH/BTC", st, nil, nil, logger),
	}, nil, limiter, logger)
	return srv.Handler()
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublicAndReportsDependencies(t *testing.T) {
	h := newTestServer(t, "secret", map[string]handler.Pinger{
		"postgres": pinger{},
		"redis":    pinger{err: errors.New("connection refused")},
	}, nil)

	rec := get(h, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["dependencies"].(map[string]any)["postgres"])
}

func TestAuthRequiredOnAPI(t *testing.T) {
	h := newTestServer(t, "secret", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", "wrong").Code)

	rec := get(h, "/api/status", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Mode     string          `json:"mode"`
		Strategy strategy.Status `json:"strategy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "paper", body.Mode)
	assert.Equal(t, 7, body.Strategy.SpreadTop)
}

func TestLadderAndEvents(t *testing.T) {
	h := newTestServer(t, "", nil, nil)

	rec := get(h, "/api/ladder", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"spread_bot":4`)
	assert.Contains(t, rec.Body.String(), `"top":"0.010102"`)

	rec = get(h, "/api/events?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count  int                 `json:"count"`
		Events []domain.OrderEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, domain.EventConsumed, body.Events[0].Event)

	rec = get(h, "/api/events?since=2024-03-01T11:00:00Z&until=2024-03-01T12:30:00Z", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, domain.EventPlaced, body.Events[0].Event)

	assert.Equal(t, http.StatusBadRequest, get(h, "/api/events?since=yesterday", "").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/cycles", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ConsecutiveFailures.WithLabelValues("ETH/BTC").Set(0)
	h := newTestServer(t, "secret", nil, nil)
	rec := get(h, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lazywhale_consecutive_failures")
}

func TestRateLimitedClientGets429(t *testing.T) {
	h := newTestServer(t, "", nil, denyAll{})
	rec := get(h, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
