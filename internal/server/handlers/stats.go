package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/pidash/pkg/api"
)

// staleAfter: кэшированный сэмпл старше этого собирается заново
const staleAfter = 2 * time.Second

// StatsSource provides samples for the stats, history and stream endpoints
type StatsSource interface {
	Latest() (api.SystemStats, bool)
	SampleOnce(ctx context.Context) (api.SystemStats, error)
	History(ctx context.Context, since time.Time) ([]api.HistoryPoint, error)
	Subscribe() (<-chan api.SystemStats, func())
}

// HistoryWindow returns how far back a history range reaches
func HistoryWindow(rng string) (time.Duration, bool) {
	switch rng {
	case api.RangeRaw:
		return 5 * time.Minute, true
	case api.RangeDay:
		return 24 * time.Hour, true
	case api.RangeWeek:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// StatsHandler обрабатывает запросы метрик
type StatsHandler struct {
	logger *slog.Logger
	source StatsSource
}

// NewStatsHandler создает новый handler для метрик
func NewStatsHandler(logger *slog.Logger, source StatsSource) *StatsHandler {
	return &StatsHandler{logger: logger, source: source}
}

// Stats обрабатывает GET /api/stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if latest, ok := h.source.Latest(); ok && time.Since(latest.Timestamp) < staleAfter {
		sendJSON(h.logger, w, latest, http.StatusOK)
		return
	}

	stats, err := h.source.SampleOnce(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to collect stats", slog.Any("error", err))
		sendError(h.logger, w, "failed to collect stats", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, stats, http.StatusOK)
}

// History обрабатывает GET /api/history?range=raw|day|week (по умолчанию day)
func (h *StatsHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = api.RangeDay
	}

	window, ok := HistoryWindow(rng)
	if !ok {
		sendError(h.logger, w, "range must be one of raw, day, week", http.StatusBadRequest)
		return
	}

	points, err := h.source.History(ctx, time.Now().Add(-window))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load history", slog.Any("error", err), slog.String("range", rng))
		sendError(h.logger, w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []api.HistoryPoint{}
	}

	sendJSON(h.logger, w, api.HistoryResponse{Range: rng, Points: points}, http.StatusOK)
}
