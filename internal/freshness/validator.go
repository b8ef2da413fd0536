// Package freshness checks that the data behind a scoring pass is recent enough.
// By default the result is advisory: failures are logged, never enforced.
package freshness

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
)

// Requirement declares how old one input may be
type Requirement struct {
	Key      string // input key inside the scoring pass
	Provider string
	Endpoint string
	Params   map[string]string
	MaxAge   time.Duration

	// ObservedAt, when set, is used instead of the cache's fetch time (streamed prices)
	ObservedAt time.Time
}

// Lookup reports when a cached call was last fetched
type Lookup interface {
	FetchedAt(ctx context.Context, providerID, endpointID string, params map[string]string) (time.Time, bool)
}

// Check is the outcome for one requirement
type Check struct {
	Key           string    `json:"key"`
	Source        string    `json:"source"`
	Fresh         bool      `json:"fresh"`
	Missing       bool      `json:"missing"`
	FetchedAt     time.Time `json:"fetched_at,omitempty"`
	AgeSeconds    float64   `json:"age_seconds"`
	MaxAgeSeconds float64   `json:"max_age_seconds"`
}

// Report is the validation of one scoring pass
type Report struct {
	Symbol    string    `json:"symbol"`
	Context   string    `json:"context"`
	CheckedAt time.Time `json:"checked_at"`
	Strict    bool      `json:"strict"`
	Passed    bool      `json:"passed"`
	Checks    []Check   `json:"checks"`
}

// Failed returns the keys of every check that did not pass, sorted
func (r Report) Failed() []string {
	var keys []string
	for _, c := range r.Checks {
		if !c.Fresh {
			keys = append(keys, c.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Validator evaluates requirements against the call cache
// ⭐ SSOT: 데이터 신선도 판정은 여기서만
type Validator struct {
	lookup  Lookup
	logger  *logger.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	strict  bool
}

// Option configures a Validator
type Option func(*Validator)

// WithStrict makes failed checks enforceable by the caller
func WithStrict(strict bool) Option {
	return func(v *Validator) { v.strict = strict }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithMetrics records failed checks
func WithMetrics(m *metrics.Recorder) Option {
	return func(v *Validator) { v.metrics = m }
}

// New creates a validator
func New(lookup Lookup, log *logger.Logger, opts ...Option) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	v := &Validator{
		lookup: lookup,
		logger: log.WithComponent("freshness"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Strict reports whether failed checks should be enforced
func (v *Validator) Strict() bool {
	return v.strict
}

// Validate checks every requirement. It never fails; missing data is a failed check.
func (v *Validator) Validate(ctx context.Context, symbol, context string, reqs []Requirement) Report {
	now := v.now()
	report := Report{
		Symbol:    symbol,
		Context:   context,
		CheckedAt: now,
		Strict:    v.strict,
		Passed:    true,
		Checks:    make([]Check, 0, len(reqs)),
	}

	for _, req := range reqs {
		check := Check{
			Key:           req.Key,
			Source:        req.Provider + ":" + req.Endpoint,
			MaxAgeSeconds: req.MaxAge.Seconds(),
		}

		at := req.ObservedAt
		if at.IsZero() && v.lookup != nil && req.Provider != "" {
			at, _ = v.lookup.FetchedAt(ctx, req.Provider, req.Endpoint, req.Params)
		}

		switch {
		case at.IsZero():
			check.Missing = true
		default:
			age := now.Sub(at)
			if age < 0 {
				age = 0
			}
			check.FetchedAt = at
			check.AgeSeconds = age.Seconds()
			check.Fresh = req.MaxAge <= 0 || age <= req.MaxAge
		}

		if !check.Fresh {
			report.Passed = false
			v.metrics.RecordStaleInput(req.Key)
			v.logger.WithFields(map[string]interface{}{
				"symbol":      symbol,
				"context":     context,
				"input":       req.Key,
				"source":      check.Source,
				"missing":     check.Missing,
				"age_seconds": check.AgeSeconds,
				"max_age":     req.MaxAge.String(),
				"strict":      v.strict,
			}).Warn("Data freshness requirement not met")
		}
		report.Checks = append(report.Checks, check)
	}

	return report
}
