package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/logger"
)

// ErrNotConfigured is returned when no Alpaca credentials are set
var ErrNotConfigured = errors.New("alpaca credentials not configured")

// BarsAPI is the subset of the market data SDK used here
type BarsAPI interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Client fetches daily bars from Alpaca market data
// ⭐ SSOT: Alpaca 시세 조회는 이 클라이언트에서만
type Client struct {
	api    BarsAPI
	logger *logger.Logger
	now    func() time.Time
}

// NewClient creates a client from config. A client without credentials
// reports ErrNotConfigured on every call.
func NewClient(cfg config.AlpacaConfig, timeout time.Duration, log *logger.Logger) *Client {
	var api BarsAPI
	if cfg.APIKey != "" && cfg.APISecret != "" {
		api = marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    cfg.DataURL,
			HTTPClient: &http.Client{Timeout: timeout},
		})
	}
	return NewWithAPI(api, log)
}

// NewWithAPI wraps an existing SDK client
func NewWithAPI(api BarsAPI, log *logger.Logger) *Client {
	return &Client{
		api:    api,
		logger: log.WithComponent("alpaca"),
		now:    time.Now,
	}
}

// Enabled reports whether credentials are configured
func (c *Client) Enabled() bool {
	return c.api != nil
}

// DailyBars returns up to lookback daily bars ending today, oldest first, as JSON-encoded
// []contracts.Bar so the result can be stored by the call cache.
func (c *Client) DailyBars(ctx context.Context, symbol string, lookback int) ([]byte, error) {
	if c.api == nil {
		return nil, &callcache.FetchError{Provider: providers.Alpaca, Kind: callcache.KindTransport, Err: ErrNotConfigured}
	}
	if err := ctx.Err(); err != nil {
		return nil, &callcache.FetchError{Provider: providers.Alpaca, Kind: callcache.KindTransport, Err: err}
	}

	end := c.now().UTC()
	// Calendar days cover weekends and holidays
	start := end.AddDate(0, 0, -(lookback*7/5 + 10))

	bars, err := c.api.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(bars) == 0 {
		return nil, &callcache.FetchError{Provider: providers.Alpaca, Kind: callcache.KindMalformed, Reached: true, Err: fmt.Errorf("no bars for %s", symbol)}
	}

	out := make([]contracts.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, contracts.Bar{
			Date:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	if lookback > 0 && len(out) > lookback {
		out = out[len(out)-lookback:]
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"bars":   len(out),
	}).Debug("Fetched daily bars")

	return json.Marshal(out)
}

// classify maps SDK errors onto the call cache taxonomy
func classify(err error) error {
	var apiErr *alpacaapi.APIError
	if errors.As(err, &apiErr) {
		kind := callcache.KindHTTP
		if apiErr.StatusCode == http.StatusTooManyRequests {
			kind = callcache.KindThrottled
		}
		return &callcache.FetchError{
			Provider:   providers.Alpaca,
			Kind:       kind,
			StatusCode: apiErr.StatusCode,
			Reached:    true,
			Err:        err,
		}
	}
	return &callcache.FetchError{Provider: providers.Alpaca, Kind: callcache.KindTransport, Err: err}
}
