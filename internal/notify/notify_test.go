package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

type captured struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]string
}

func newHook(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestAlertFansOutAboveMinimum(t *testing.T) {
	tg, tgGot := newHook(t, http.StatusOK)
	dc, dcGot := newHook(t, http.StatusNoContent)
	sl, slGot := newHook(t, http.StatusOK)

	n := NewNotifier([]Sender{
		NewTelegramSender("TOKEN", "42", tg.URL),
		NewDiscordSender(dc.URL),
		NewSlackSender(sl.URL),
	}, domain.SeverityWarning, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Alert(context.Background(), domain.SeverityInfo, "cycle", "ok"))
	assert.Empty(t, tgGot.bodies)

	require.NoError(t, n.Alert(context.Background(), domain.SeverityCritical, "ETH/BTC stopped", "bottom reached"))
	require.Len(t, tgGot.bodies, 1)
	assert.Equal(t, "/botTOKEN/sendMessage", tgGot.paths[0])
	assert.Equal(t, "42", tgGot.bodies[0]["chat_id"])
	assert.Equal(t, "*[CRITICAL] ETH/BTC stopped*\nbottom reached", tgGot.bodies[0]["text"])
	assert.Equal(t, "**[CRITICAL] ETH/BTC stopped**\nbottom reached", dcGot.bodies[0]["content"])
	assert.Equal(t, "*[CRITICAL] ETH/BTC stopped*\nbottom reached", slGot.bodies[0]["text"])
}

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string, string) error {
	f.calls++
	return errors.New("down")
}

func (f *failingSender) Name() string { return "broken" }

func TestAlertReportsFailedSendersButTriesAll(t *testing.T) {
	hook, got := newHook(t, http.StatusOK)
	broken := &failingSender{}
	n := NewNotifier([]Sender{broken, NewSlackSender(hook.URL)}, domain.SeverityWarning, slog.New(slog.DiscardHandler))

	err := n.Alert(context.Background(), domain.SeverityWarning, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: down")
	assert.Equal(t, 1, broken.calls)
	assert.Len(t, got.bodies, 1)
}

func TestSenderStatusError(t *testing.T) {
	hook, _ := newHook(t, http.StatusBadRequest)
	err := NewDiscordSender(hook.URL).Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityWarning, sev)
	sev, err = ParseSeverity("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, sev)
	_, err = ParseSeverity("loud")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
