package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/logger"
)

// ProviderHandler serves the provider catalog and quota usage
// ⭐ SSOT: 프로바이더 API 핸들러는 이 구조체에서만
type ProviderHandler struct {
	registry *providers.Registry
	cache    *callcache.Cache
	logger   *logger.Logger
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(registry *providers.Registry, cache *callcache.Cache, log *logger.Logger) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		cache:    cache,
		logger:   log,
	}
}

// List returns the catalog, optionally filtered by kind
// GET /api/providers?kind=trading|data
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, err := providers.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list := h.registry.List(kind)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(list),
		"providers": list,
	})
}

// Get returns one provider
// GET /api/providers/{id}
func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, ok := h.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "provider not found: "+id)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// Usage returns the current minute/day ledger counts against the quota
// GET /api/providers/{id}/usage
func (h *ProviderHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	usage, err := h.cache.Usage(r.Context(), id)
	if err != nil {
		if errors.Is(err, callcache.ErrUnknownProvider) {
			respondError(w, http.StatusNotFound, "provider not found: "+id)
			return
		}
		h.logger.WithError(err).WithField("provider", id).Error("Failed to read provider usage")
		respondError(w, http.StatusInternalServerError, "Failed to read provider usage")
		return
	}

	respondJSON(w, http.StatusOK, usage)
}
