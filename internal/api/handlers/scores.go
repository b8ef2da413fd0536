package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/tradepulse/internal/scoring"
	"github.com/wonny/tradepulse/pkg/logger"
)

// ScoreHandler runs directives for a symbol on demand
// ⭐ SSOT: 스코어 API 핸들러는 이 구조체에서만
type ScoreHandler struct {
	engine *scoring.Engine
	logger *logger.Logger
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(engine *scoring.Engine, log *logger.Logger) *ScoreHandler {
	return &ScoreHandler{engine: engine, logger: log}
}

// Score scores one symbol
// GET /api/scores/{symbol}?directives=rsi,macd
func (h *ScoreHandler) Score(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var ids []string
	if raw := r.URL.Query().Get("directives"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	report, err := h.engine.Score(r.Context(), symbol, ids)
	if err != nil {
		switch {
		case errors.Is(err, scoring.ErrUnknownDirective),
			errors.Is(err, scoring.ErrInvalidSymbol),
			errors.Is(err, scoring.ErrNoDirectives):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to score symbol")
			respondError(w, http.StatusInternalServerError, "Failed to score symbol")
		}
		return
	}

	respondJSON(w, http.StatusOK, report)
}
