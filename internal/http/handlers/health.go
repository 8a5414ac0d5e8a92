package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns uptime and store reachability.
type HealthHandler struct {
	startedAt time.Time
	store     Pinger
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, store Pinger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, store: store}
}

// Register wires the handler into the router.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		logger.From(r.Context()).Warn("health: store unreachable", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respond.JSON(w, code, status, map[string]string{
		"status": status,
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
