package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
)

// healthTimeout bounds the storage check so a stuck database fails the probe.
const healthTimeout = 2 * time.Second

// HealthChecker reports whether the store is usable and at which schema version.
type HealthChecker interface {
	Health(ctx context.Context) (int64, error)
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	checker HealthChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		Base:    NewBase(logger),
		checker: checker,
	}
}

// ServeHTTP handles GET /health. It answers 503 when the store cannot be reached.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	version, err := h.checker.Health(ctx)
	if err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.WriteJSON(w, http.StatusServiceUnavailable, dto.NewUnavailableResponse(err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewHealthResponse(version))
}
