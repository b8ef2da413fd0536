// Package scoring runs directives for a symbol: it gathers every input the
// requested directives need, validates freshness, then scores.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/directives"
	"github.com/wonny/tradepulse/internal/freshness"
	"github.com/wonny/tradepulse/internal/indicators"
	"github.com/wonny/tradepulse/internal/strategyconfig"
	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
)

// Defaults
const (
	DefaultFetchTimeout = 20 * time.Second
	DefaultParallelism  = 4
)

var (
	ErrUnknownDirective = errors.New("unknown directive")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrNoDirectives     = errors.New("no directives requested")
)

// InputStatus records how one input was served
type InputStatus struct {
	Key    string    `json:"key"`
	Source string    `json:"source,omitempty"`
	AsOf   time.Time `json:"as_of,omitempty"`
	Error  string    `json:"error,omitempty"`
	Stale  bool      `json:"stale,omitempty"`
}

// Report is the outcome of one scoring pass
type Report struct {
	Symbol     string                               `json:"symbol"`
	ScoredAt   time.Time                            `json:"scored_at"`
	Directives []string                             `json:"directives"`
	Results    map[string]contracts.DirectiveResult `json:"results"`
	Inputs     []InputStatus                        `json:"inputs"`
	Freshness  freshness.Report                     `json:"freshness"`
	Profile    *strategyconfig.Snapshot             `json:"profile,omitempty"`
	DurationMs int64                                `json:"duration_ms"`
}

// Engine scores symbols
// ⭐ SSOT: 스코어링 파이프라인 (입력 수집 → 신선도 검증 → 디렉티브 실행)
type Engine struct {
	reg       *directives.Registry
	fetchers  *indicators.Set
	validator *freshness.Validator
	logger    *logger.Logger
	metrics   *metrics.Recorder

	fetchTimeout time.Duration
	parallelism  int
	defaults     []string
	profile      *strategyconfig.Snapshot
	now          func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithFetchTimeout bounds each input fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// WithParallelism bounds concurrent input fetches
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithDefaultDirectives sets the directives scored when none are requested
func WithDefaultDirectives(ids []string) Option {
	return func(e *Engine) { e.defaults = append([]string(nil), ids...) }
}

// WithProfile attaches the strategy profile snapshot to every report
func WithProfile(s *strategyconfig.Snapshot) Option {
	return func(e *Engine) { e.profile = s }
}

// WithMetrics records directive outcomes
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source handed to directives
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine
func New(reg *directives.Registry, fetchers *indicators.Set, validator *freshness.Validator, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		reg:          reg,
		fetchers:     fetchers,
		validator:    validator,
		logger:       log.WithComponent("scoring"),
		fetchTimeout: DefaultFetchTimeout,
		parallelism:  DefaultParallelism,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the directive registry
func (e *Engine) Registry() *directives.Registry {
	return e.reg
}

// Resolve validates ids, falling back to the default set when empty
func (e *Engine) Resolve(ids []string) ([]string, error) {
	if len(ids) == 0 {
		ids = e.defaults
	}
	if len(ids) == 0 {
		return nil, ErrNoDirectives
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		if _, ok := e.reg.Get(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDirective, id)
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrNoDirectives
	}
	return out, nil
}

// Score runs the requested directives for symbol. Fetch failures never fail
// the pass; they surface as non-ok directive results.
func (e *Engine) Score(ctx context.Context, symbol string, ids []string) (*Report, error) {
	start := time.Now()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.ContainsAny(symbol, " /?&") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	ids, err := e.Resolve(ids)
	if err != nil {
		return nil, err
	}

	var inputs []directives.Input
	for _, id := range ids {
		d, _ := e.reg.Get(id)
		inputs = append(inputs, d.Inputs(e.reg.Params(id))...)
	}
	inputs = mergeInputs(inputs)

	data := directives.NewSymbolData(symbol, e.now())
	statuses, reqs := e.gather(ctx, data, inputs)

	report := &Report{
		Symbol:     symbol,
		Directives: ids,
		Results:    make(map[string]contracts.DirectiveResult, len(ids)),
		Profile:    e.profile,
	}

	if e.validator != nil {
		report.Freshness = e.validator.Validate(ctx, symbol, "score", reqs)
		if e.validator.Strict() {
			for _, key := range report.Freshness.Failed() {
				data.Stale[key] = true
			}
		}
	}
	for i := range statuses {
		statuses[i].Stale = data.Stale[statuses[i].Key]
	}
	report.Inputs = statuses

	for _, id := range ids {
		d, _ := e.reg.Get(id)
		r := d.CalculateScore(data, e.reg.Params(id))
		e.metrics.RecordDirective(id, string(r.Status))
		report.Results[id] = r
	}

	report.ScoredAt = e.now()
	report.DurationMs = time.Since(start).Milliseconds()

	e.logger.WithFields(map[string]interface{}{
		"symbol":      symbol,
		"directives":  len(ids),
		"inputs":      len(inputs),
		"failures":    len(data.Failures),
		"fresh":       report.Freshness.Passed,
		"duration_ms": report.DurationMs,
	}).Info("Scored symbol")

	return report, nil
}

// gather fetches every input concurrently into data
func (e *Engine) gather(ctx context.Context, data *directives.SymbolData, inputs []directives.Input) ([]InputStatus, []freshness.Requirement) {
	var (
		mu       sync.Mutex
		statuses = make([]InputStatus, len(inputs))
		reqs     []freshness.Requirement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.fetchTimeout)
			defer cancel()

			status := InputStatus{Key: in.Key()}
			req, err := e.fetch(fctx, data, &mu, in, &status)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				data.Failures[status.Key] = err.Error()
				status.Error = err.Error()
				e.logger.WithError(err).WithFields(map[string]interface{}{
					"symbol": data.Symbol,
					"input":  status.Key,
				}).Warn("Input unavailable")
			} else if req != nil {
				reqs = append(reqs, *req)
			}
			statuses[i] = status
			// never abort siblings
			return nil
		})
	}
	_ = g.Wait()

	return statuses, reqs
}

// fetch loads one input and returns its freshness requirement
func (e *Engine) fetch(ctx context.Context, data *directives.SymbolData, mu *sync.Mutex, in directives.Input, status *InputStatus) (*freshness.Requirement, error) {
	key := in.Key()

	switch in.Kind {
	case directives.InputIndicator:
		f, ok := e.fetchers.Indicator(in.Indicator)
		if !ok {
			return nil, fmt.Errorf("unsupported indicator %s", in.Indicator)
		}
		reading, err := f.Fetch(ctx, data.Symbol, in.Params)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		data.Indicators[key] = reading
		mu.Unlock()

		status.Source, status.AsOf = reading.Source, reading.AsOf
		req := f.Request(data.Symbol, in.Params)
		return requirement(key, req), nil

	case directives.InputBars:
		bars, req, err := e.fetchers.Bars.Fetch(ctx, data.Symbol, in.Lookback)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		data.Bars = bars
		mu.Unlock()

		status.Source = req.Provider
		if len(bars) > 0 {
			status.AsOf = bars[len(bars)-1].Date
		}
		return requirement(key, req), nil

	case directives.InputQuote:
		q, req, err := e.fetchers.Quote.Fetch(ctx, data.Symbol)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		data.Quote = &q
		mu.Unlock()

		status.Source, status.AsOf = q.Source, q.AsOf
		if req == nil {
			return &freshness.Requirement{
				Key:        key,
				Provider:   q.Source,
				Endpoint:   "trades",
				MaxAge:     indicators.PriceMaxAge,
				ObservedAt: q.AsOf,
			}, nil
		}
		return requirement(key, *req), nil
	}

	return nil, fmt.Errorf("unknown input kind %q", in.Kind)
}

func requirement(key string, req indicators.Request) *freshness.Requirement {
	return &freshness.Requirement{
		Key:      key,
		Provider: req.Provider,
		Endpoint: req.Endpoint,
		Params:   req.Params,
		MaxAge:   req.MaxAge,
	}
}

// mergeInputs dedupes by key, keeping the longest bars lookback
func mergeInputs(inputs []directives.Input) []directives.Input {
	idx := make(map[string]int, len(inputs))
	out := make([]directives.Input, 0, len(inputs))
	for _, in := range inputs {
		key := in.Key()
		if i, ok := idx[key]; ok {
			if in.Lookback > out[i].Lookback {
				out[i] = in
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, in)
	}
	return out
}
