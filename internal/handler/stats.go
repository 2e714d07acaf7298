package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/auth"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/service"
)

// StatsReporter is the read-only report surface. *service.StatsService
// satisfies it.
type StatsReporter interface {
	Today(ctx context.Context) (*service.RangeStats, error)
	RangeStats(ctx context.Context, daysBack int) (*service.RangeStats, error)
	Conversion(ctx context.Context, daysBack int) (*service.ConversionReport, error)
	Plans(ctx context.Context) ([]model.Plan, error)
}

// defaultReportDays is used when ?days is absent.
const defaultReportDays = 7

// StatsHandler serves the operator reports. Every response is an aggregate;
// nothing here exposes a single user's events.
type StatsHandler struct {
	stats  StatsReporter
	logger *slog.Logger
}

func NewStatsHandler(stats StatsReporter, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// HandleToday: GET /api/stats/today
func (h *StatsHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	rs, err := h.stats.Today(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// HandleRange: GET /api/stats/range?days=N
func (h *StatsHandler) HandleRange(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.stats.RangeStats(r.Context(), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// HandleConversion: GET /api/stats/conversion?days=N
func (h *StatsHandler) HandleConversion(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := h.stats.Conversion(r.Context(), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandlePlans: GET /api/plans
func (h *StatsHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.stats.Plans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *StatsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	}
	if op, ok := auth.OperatorFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("operator", op))
	}
	h.logger.ErrorContext(r.Context(), "stats request failed", attrs...)
	writeError(w, err)
}

// daysParam parses ?days=N. Range checks belong to the service.
func daysParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultReportDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed("days", "days must be an integer")
	}
	return n, nil
}
