package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/tradepulse/internal/realtime/cache"
	"github.com/wonny/tradepulse/pkg/logger"
)

// PriceHandler exposes the streamed price cache
type PriceHandler struct {
	cache  *cache.PriceCache
	logger *logger.Logger
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(priceCache *cache.PriceCache, log *logger.Logger) *PriceHandler {
	return &PriceHandler{cache: priceCache, logger: log}
}

// List returns every cached tick with cache stats
// GET /api/prices
func (h *PriceHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  h.cache.Stats(),
		"prices": h.cache.GetAll(),
	})
}

// Get returns the latest tick for a symbol
// GET /api/prices/{symbol}
func (h *PriceHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	tick, ok := h.cache.Get(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "no price for "+symbol)
		return
	}

	respondJSON(w, http.StatusOK, tick)
}
