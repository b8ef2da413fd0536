package indicators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/logger"
)

// PriceSource is an in-process cache of streamed prices
type PriceSource interface {
	Latest(symbol string) (price float64, at time.Time, ok bool)
}

// QuoteFetcher resolves the current price: streamed price, then GLOBAL_QUOTE,
// then the last daily close.
type QuoteFetcher struct {
	cache  *callcache.Cache
	client Querier
	bars   *BarsFetcher
	prices PriceSource
	logger *logger.Logger
}

// Request returns the GLOBAL_QUOTE cached call for symbol
func (f *QuoteFetcher) Request(symbol string) Request {
	return Request{
		Provider: providers.AlphaVantage,
		Endpoint: "GLOBAL_QUOTE",
		Params:   map[string]string{"symbol": symbol},
		TTL:      QuoteTTL,
		MaxAge:   PriceMaxAge,
	}
}

// Fetch returns the quote and the cached call behind it. The request is nil when
// the price came from the stream.
func (f *QuoteFetcher) Fetch(ctx context.Context, symbol string) (contracts.Quote, *Request, error) {
	now := f.cache.Now()

	if f.prices != nil {
		if price, at, ok := f.prices.Latest(symbol); ok && now.Sub(at) <= PriceMaxAge {
			return contracts.Quote{Symbol: symbol, Price: price, AsOf: at, Source: "realtime"}, nil, nil
		}
	}

	req := f.Request(symbol)
	payload, err := f.cache.GetOrFetch(ctx, req.Provider, req.Endpoint, req.Params, req.TTL, checked(req.Provider,
		func(ctx context.Context) ([]byte, error) {
			return f.client.Query(ctx, req.Endpoint, req.Params)
		},
		func(payload []byte) error {
			_, err := parseGlobalQuote(symbol, payload)
			return err
		}))
	if err == nil {
		q, perr := parseGlobalQuote(symbol, payload)
		if perr == nil {
			q.Source = providers.AlphaVantage
			if q.AsOf.IsZero() {
				q.AsOf = now
			}
			return q, &req, nil
		}
		err = perr
	}
	quoteErr := err

	bars, barsReq, err := f.bars.Fetch(ctx, symbol, 5)
	if err == nil && len(bars) > 0 {
		last := bars[len(bars)-1]
		f.logger.WithError(quoteErr).WithField("symbol", symbol).Debug("Quote unavailable, using last close")
		barsReq.MaxAge = BarsMaxAge
		return contracts.Quote{Symbol: symbol, Price: last.Close, AsOf: last.Date, Source: "bars"}, &barsReq, nil
	}

	return contracts.Quote{}, nil, fmt.Errorf("fetch quote for %s: %w", symbol, errors.Join(quoteErr, err))
}
