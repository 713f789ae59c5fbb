package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// CycleHistory is the read side of the cycle recorder.
type CycleHistory interface {
	RecentCycles(ctx context.Context, market string, limit int) ([]domain.CycleReport, error)
}

// HistoryHandler serves the order-event log, the cycle history and the
// audit log of one market.
type HistoryHandler struct {
	market string
	events domain.OrderEventStore
	cycles CycleHistory
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. cycles and audit may be nil.
func NewHistoryHandler(market string, events domain.OrderEventStore, cycles CycleHistory, audit domain.AuditStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		market: market,
		events: events,
		cycles: cycles,
		audit:  audit,
		logger: logHandler(logger, "history"),
	}
}

// ListEvents returns order events. With since (and optionally until) it
// returns that time range, otherwise the newest limit events.
// GET /api/events?limit=100
// GET /api/events?since=2024-03-01T00:00:00Z&until=2024-03-02T00:00:00Z
func (h *HistoryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time parameter")
		return
	}

	var evs []domain.OrderEvent
	if opts.Since != nil {
		until := time.Now().UTC()
		if opts.Until != nil {
			until = *opts.Until
		}
		evs, err = h.events.ListEvents(r.Context(), h.market, *opts.Since, until)
	} else {
		evs, err = h.events.RecentEvents(r.Context(), h.market, limitParam(r, opts.Limit))
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evs == nil {
		evs = []domain.OrderEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market": h.market,
		"count":  len(evs),
		"events": evs,
	})
}

// ListCycles returns the newest recorded cycle reports.
// GET /api/cycles?limit=50
func (h *HistoryHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if h.cycles == nil {
		writeError(w, http.StatusNotFound, "cycle recorder disabled")
		return
	}
	opts, _ := parseListOpts(r)
	reps, err := h.cycles.RecentCycles(r.Context(), h.market, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list cycles failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	if reps == nil {
		reps = []domain.CycleReport{}
	}
	writeJSON(w, http.StatusOK, reps)
}

// ListAudit returns lifecycle audit entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *HistoryHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time parameter")
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// limitParam lets the event history go past the 500 cap of parseListOpts.
func limitParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10000 {
			return n
		}
	}
	return fallback
}
