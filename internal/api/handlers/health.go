package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
)

// storeProbeTimeout bounds the store check inside /health
const storeProbeTimeout = 2 * time.Second

// HealthHandler reports service liveness and the cache store's health
type HealthHandler struct {
	store  kvstore.Store
	logger *logger.Logger
}

// NewHealthHandler creates a new HealthHandler. store may be nil.
func NewHealthHandler(store kvstore.Store, log *logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: log}
}

// Check handles GET /health. An unhealthy store answers 503 with status "degraded".
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"service": "tradepulse-api",
	}
	if h == nil || h.store == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeProbeTimeout)
	defer cancel()

	health := h.store.Health(ctx)
	resp["store"] = health
	if !health.Healthy {
		h.logger.WithField("backend", health.Backend).WithField("error", health.Error).Warn("Store health check failed")
		resp["status"] = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
