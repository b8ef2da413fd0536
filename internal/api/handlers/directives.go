package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/tradepulse/internal/directives"
	"github.com/wonny/tradepulse/internal/scoring"
	"github.com/wonny/tradepulse/pkg/logger"
)

// DirectiveHandler describes the registered directives
type DirectiveHandler struct {
	engine *scoring.Engine
	logger *logger.Logger
}

// NewDirectiveHandler creates a new directive handler
func NewDirectiveHandler(engine *scoring.Engine, log *logger.Logger) *DirectiveHandler {
	return &DirectiveHandler{engine: engine, logger: log}
}

// List returns every directive with its effective parameters
// GET /api/directives
func (h *DirectiveHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.engine.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(list),
		"directives": list,
	})
}

// Get returns the max score and explanation of one directive.
// Query parameters override the configured params, e.g. ?oversold=25
// GET /api/directives/{id}
func (h *DirectiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	override := directives.Params{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			override[k] = vs[len(vs)-1]
		}
	}

	desc, err := h.engine.Describe(id, override)
	if err != nil {
		if errors.Is(err, scoring.ErrUnknownDirective) {
			respondError(w, http.StatusNotFound, "directive not found: "+id)
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, desc)
}
