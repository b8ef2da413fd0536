package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records call cache, ledger and scoring metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	cacheLookups  *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	directiveRuns *prometheus.CounterVec
	staleInputs   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
}

// New registers the recorder's collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_cache_lookups_total",
				Help: "Call cache lookups by provider and outcome (hit, miss, shared, stale)",
			},
			[]string{"provider", "outcome"},
		),
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_provider_calls_total",
				Help: "Outbound provider calls by result",
			},
			[]string{"provider", "result"},
		),
		rateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_rate_limited_total",
				Help: "Calls refused locally because a provider quota was exhausted",
			},
			[]string{"provider", "window"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_provider_fetch_duration_seconds",
				Help:    "Duration of outbound provider fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		directiveRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_directive_results_total",
				Help: "Directive evaluations by directive and result status",
			},
			[]string{"directive", "status"},
		),
		staleInputs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_stale_inputs_total",
				Help: "Inputs that failed the freshness check",
			},
			[]string{"key"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_last_price",
				Help: "Last streamed trade price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordCacheLookup records a call cache lookup outcome.
func (r *Recorder) RecordCacheLookup(provider, outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderCall records an outbound call and its latency.
func (r *Recorder) RecordProviderCall(provider, result string, seconds float64) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, result).Inc()
	r.fetchLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordRateLimited records a locally refused call.
func (r *Recorder) RecordRateLimited(provider, window string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(provider, window).Inc()
}

// RecordDirective records a directive result status.
func (r *Recorder) RecordDirective(directive, status string) {
	if r == nil {
		return
	}
	r.directiveRuns.WithLabelValues(directive, status).Inc()
}

// RecordStaleInput records a failed freshness check.
func (r *Recorder) RecordStaleInput(key string) {
	if r == nil {
		return
	}
	r.staleInputs.WithLabelValues(key).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
