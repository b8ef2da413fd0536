package indicators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/logger"
)

// compactSize is how many daily points the compact output holds
const compactSize = 100

// BarsSource is a secondary provider of daily bars returning JSON []contracts.Bar
type BarsSource interface {
	Enabled() bool
	DailyBars(ctx context.Context, symbol string, lookback int) ([]byte, error)
}

// BarsFetcher reads daily OHLCV history: Alpha Vantage first, then the secondary
// provider, then any retained stale copy of either.
type BarsFetcher struct {
	cache  *callcache.Cache
	client Querier
	alt    BarsSource
	logger *logger.Logger
}

// Request returns the primary cached call for symbol
func (f *BarsFetcher) Request(symbol string, lookback int) Request {
	size := "compact"
	if lookback > compactSize {
		size = "full"
	}
	return Request{
		Provider: providers.AlphaVantage,
		Endpoint: "TIME_SERIES_DAILY",
		Params:   map[string]string{"symbol": symbol, "outputsize": size},
		TTL:      BarsTTL,
		MaxAge:   BarsMaxAge,
	}
}

func (f *BarsFetcher) altRequest(symbol string, lookback int) Request {
	return Request{
		Provider: providers.Alpaca,
		Endpoint: "bars",
		Params:   map[string]string{"symbol": symbol, "timeframe": "1Day", "lookback": strconv.Itoa(lookback)},
		TTL:      BarsTTL,
		MaxAge:   BarsMaxAge,
	}
}

// Fetch returns up to lookback bars oldest first and the request that served them
func (f *BarsFetcher) Fetch(ctx context.Context, symbol string, lookback int) ([]contracts.Bar, Request, error) {
	primary := f.Request(symbol, lookback)
	bars, err := f.fromPrimary(ctx, primary)
	if err == nil {
		return tail(bars, lookback), primary, nil
	}
	primaryErr := err

	var alt Request
	if f.alt != nil && f.alt.Enabled() {
		alt = f.altRequest(symbol, lookback)
		f.logger.WithError(primaryErr).WithField("symbol", symbol).Warn("Primary bars failed, trying Alpaca")

		payload, err := f.cache.GetOrFetch(ctx, alt.Provider, alt.Endpoint, alt.Params, alt.TTL, checked(alt.Provider,
			func(ctx context.Context) ([]byte, error) {
				return f.alt.DailyBars(ctx, symbol, lookback)
			},
			func(payload []byte) error {
				_, err := decodeBars(payload)
				return err
			}))
		var altBars []contracts.Bar
		if err == nil {
			altBars, err = decodeBars(payload)
		}
		if err == nil {
			return tail(altBars, lookback), alt, nil
		}
		primaryErr = errors.Join(primaryErr, err)
	}

	// Last resort: anything retained, even if expired
	if entry, ok := f.cache.GetStale(ctx, primary.Provider, primary.Endpoint, primary.Params); ok {
		if bars, err := parseDailySeries(entry.Payload); err == nil {
			return tail(bars, lookback), primary, nil
		}
	}
	if alt.Provider != "" {
		if entry, ok := f.cache.GetStale(ctx, alt.Provider, alt.Endpoint, alt.Params); ok {
			if bars, err := decodeBars(entry.Payload); err == nil {
				return tail(bars, lookback), alt, nil
			}
		}
	}

	return nil, primary, fmt.Errorf("fetch bars for %s: %w", symbol, primaryErr)
}

func (f *BarsFetcher) fromPrimary(ctx context.Context, req Request) ([]contracts.Bar, error) {
	payload, err := f.cache.GetOrFetch(ctx, req.Provider, req.Endpoint, req.Params, req.TTL, checked(req.Provider,
		func(ctx context.Context) ([]byte, error) {
			return f.client.Query(ctx, req.Endpoint, req.Params)
		},
		func(payload []byte) error {
			_, err := parseDailySeries(payload)
			return err
		}))
	if err != nil {
		return nil, err
	}
	return parseDailySeries(payload)
}

func decodeBars(payload []byte) ([]contracts.Bar, error) {
	var bars []contracts.Bar
	if err := json.Unmarshal(payload, &bars); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar list", ErrMalformed)
	}
	contracts.SortBars(bars)
	return bars, nil
}

func tail(bars []contracts.Bar, n int) []contracts.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
