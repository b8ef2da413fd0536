// Package indicators turns provider responses into canonical readings.
// Every outbound call goes through the call cache.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/logger"
)

// Cache lifetimes per input class
const (
	IndicatorTTL = 30 * time.Minute
	QuoteTTL     = 10 * time.Minute
	BarsTTL      = 15 * time.Minute
)

// Freshness requirements per input class
const (
	IndicatorMaxAge = 30 * time.Minute
	PriceMaxAge     = 15 * time.Minute
	BarsMaxAge      = 24 * time.Hour
)

// Querier is an Alpha Vantage style function API
type Querier interface {
	Query(ctx context.Context, function string, params map[string]string) ([]byte, error)
}

// Request identifies the cached call behind an input
type Request struct {
	Provider string
	Endpoint string
	Params   map[string]string
	TTL      time.Duration
	MaxAge   time.Duration
}

// Definition describes one technical indicator endpoint
type Definition struct {
	Name     string            // canonical name, also the API function
	Primary  string            // field kept in the series
	Defaults map[string]string // request params applied when absent
}

var definitions = map[string]Definition{
	"RSI":    {Name: "RSI", Primary: "rsi", Defaults: map[string]string{"interval": "daily", "time_period": "14", "series_type": "close"}},
	"MACD":   {Name: "MACD", Primary: "macd", Defaults: map[string]string{"interval": "daily", "series_type": "close"}},
	"ADX":    {Name: "ADX", Primary: "adx", Defaults: map[string]string{"interval": "daily", "time_period": "14"}},
	"CCI":    {Name: "CCI", Primary: "cci", Defaults: map[string]string{"interval": "daily", "time_period": "20"}},
	"EMA":    {Name: "EMA", Primary: "ema", Defaults: map[string]string{"interval": "daily", "time_period": "20", "series_type": "close"}},
	"BBANDS": {Name: "BBANDS", Primary: "real_middle_band", Defaults: map[string]string{"interval": "daily", "time_period": "20", "series_type": "close", "nbdevup": "2", "nbdevdn": "2"}},
	"MFI":    {Name: "MFI", Primary: "mfi", Defaults: map[string]string{"interval": "daily", "time_period": "14"}},
	"OBV":    {Name: "OBV", Primary: "obv", Defaults: map[string]string{"interval": "daily"}},
	"VWAP":   {Name: "VWAP", Primary: "vwap", Defaults: map[string]string{"interval": "15min"}},
	"STOCH":  {Name: "STOCH", Primary: "slowk", Defaults: map[string]string{"interval": "daily"}},
}

// Names lists the supported indicators in order
func Names() []string {
	names := make([]string, 0, len(definitions))
	for n := range definitions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns an indicator definition
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Fetcher reads one technical indicator through the call cache
// ⭐ SSOT: 지표 조회는 Fetcher.Fetch를 통해서만
type Fetcher struct {
	def    Definition
	cache  *callcache.Cache
	client Querier
	logger *logger.Logger
}

// Name returns the indicator name
func (f *Fetcher) Name() string {
	return f.def.Name
}

// Request returns the cached call that serves symbol with params
func (f *Fetcher) Request(symbol string, params map[string]string) Request {
	merged := make(map[string]string, len(f.def.Defaults)+len(params)+1)
	for k, v := range f.def.Defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	merged["symbol"] = symbol

	return Request{
		Provider: providers.AlphaVantage,
		Endpoint: f.def.Name,
		Params:   merged,
		TTL:      IndicatorTTL,
		MaxAge:   IndicatorMaxAge,
	}
}

// Fetch returns the latest reading. When the provider quota is exhausted a stale
// cached response is used if one is still retained.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, params map[string]string) (contracts.IndicatorReading, error) {
	req := f.Request(symbol, params)

	payload, err := f.cache.GetOrFetch(ctx, req.Provider, req.Endpoint, req.Params, req.TTL, checked(req.Provider,
		func(ctx context.Context) ([]byte, error) {
			return f.client.Query(ctx, req.Endpoint, req.Params)
		},
		func(payload []byte) error {
			_, err := parseTechnical(symbol, f.def, payload)
			return err
		}))
	source := req.Provider
	if err != nil {
		if !callcache.IsRateLimited(err) {
			return contracts.IndicatorReading{}, fmt.Errorf("fetch %s for %s: %w", f.def.Name, symbol, err)
		}
		entry, ok := f.cache.GetStale(ctx, req.Provider, req.Endpoint, req.Params)
		if !ok {
			return contracts.IndicatorReading{}, fmt.Errorf("fetch %s for %s: %w", f.def.Name, symbol, err)
		}
		f.logger.WithFields(map[string]interface{}{
			"indicator": f.def.Name,
			"symbol":    symbol,
			"age":       entry.Age(f.cache.Now()).String(),
		}).Warn("Rate limited, serving stale indicator")
		payload = entry.Payload
		source = req.Provider + ":stale"
	}

	reading, err := parseTechnical(symbol, f.def, payload)
	if err != nil {
		return contracts.IndicatorReading{}, fmt.Errorf("parse %s for %s: %w", f.def.Name, symbol, err)
	}
	reading.Source = source
	return reading, nil
}

// checked runs fetch and turns a payload that parse rejects into a malformed
// FetchError, so the call is counted but nothing is cached
func checked(provider string, fetch callcache.FetchFunc, parse func([]byte) error) callcache.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := parse(payload); err != nil {
			return nil, &callcache.FetchError{Provider: provider, Kind: callcache.KindMalformed, Reached: true, Err: err}
		}
		return payload, nil
	}
}

// Set holds every fetcher the scoring engine can use
type Set struct {
	indicators map[string]*Fetcher
	Bars       *BarsFetcher
	Quote      *QuoteFetcher
}

// NewSet wires fetchers to the cache. alt and prices may be nil.
func NewSet(cache *callcache.Cache, av Querier, alt BarsSource, prices PriceSource, log *logger.Logger) *Set {
	log = log.WithComponent("indicators")

	s := &Set{indicators: make(map[string]*Fetcher, len(definitions))}
	for name, def := range definitions {
		s.indicators[name] = &Fetcher{def: def, cache: cache, client: av, logger: log}
	}
	s.Bars = &BarsFetcher{cache: cache, client: av, alt: alt, logger: log}
	s.Quote = &QuoteFetcher{cache: cache, client: av, bars: s.Bars, prices: prices, logger: log}
	return s
}

// Indicator returns the fetcher for name
func (s *Set) Indicator(name string) (*Fetcher, bool) {
	f, ok := s.indicators[name]
	return f, ok
}
