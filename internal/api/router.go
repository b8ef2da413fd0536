package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/tradepulse/internal/api/handlers"
	"github.com/wonny/tradepulse/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter. Prices may be nil
// when no stream is configured; a nil Health answers without a store check.
type Handlers struct {
	Health     *handlers.HealthHandler
	Providers  *handlers.ProviderHandler
	Directives *handlers.DirectiveHandler
	Scores     *handlers.ScoreHandler
	Prices     *handlers.PriceHandler
}

// NewRouter creates and configures the HTTP router. A nil gatherer disables /metrics.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, gatherer prometheus.Gatherer, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health.Check).Methods("GET")

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Provider catalog
	api.HandleFunc("/providers", h.Providers.List).Methods("GET")
	api.HandleFunc("/providers/{id}", h.Providers.Get).Methods("GET")
	api.HandleFunc("/providers/{id}/usage", h.Providers.Usage).Methods("GET")

	// Directives
	api.HandleFunc("/directives", h.Directives.List).Methods("GET")
	api.HandleFunc("/directives/{id}", h.Directives.Get).Methods("GET")

	// Scores
	api.HandleFunc("/scores/{symbol}", h.Scores.Score).Methods("GET")

	if h.Prices != nil {
		api.HandleFunc("/prices", h.Prices.List).Methods("GET")
		api.HandleFunc("/prices/{symbol}", h.Prices.Get).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
