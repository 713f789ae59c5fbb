package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

// StrategyView is the read side of the running engine.
type StrategyView interface {
	Status() strategy.Status
	LadderState() []domain.IntervalState
}

// StatusHandler serves the strategy status and the ladder.
type StatusHandler struct {
	mode      string
	view      StrategyView
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, view StrategyView, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, view: view, startedAt: startedAt}
}

// GetStatus responds with the run mode and the last published engine
// status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"strategy":       h.view.Status(),
	})
}

// GetLadder responds with every interval and its resting orders.
// GET /api/ladder
func (h *StatusHandler) GetLadder(w http.ResponseWriter, r *http.Request) {
	intervals := h.view.LadderState()
	if intervals == nil {
		writeError(w, http.StatusServiceUnavailable, "ladder not initialised")
		return
	}
	st := h.view.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"market":     st.Market,
		"spread_bot": st.SpreadBot,
		"spread_top": st.SpreadTop,
		"intervals":  intervals,
	})
}
