package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	store  Pinger
	logger *slog.Logger
}

func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// HandleHealth: GET /healthz. 200 when the store answers within 2s, 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}
