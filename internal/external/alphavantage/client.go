package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/httputil"
	"github.com/wonny/tradepulse/pkg/logger"
)

// ErrNoAPIKey is returned before any request when no key is configured
var ErrNoAPIKey = errors.New("alpha vantage api key not configured")

// Client handles communication with the Alpha Vantage query API
// ⭐ SSOT: Alpha Vantage API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string
}

// NewClient creates a new Alpha Vantage client.
// Retries are disabled: every retry would spend quota the ledger cannot see.
func NewClient(cfg config.AlphaVantageConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co/query"
	}

	return &Client{
		httpClient: httpClient.DisableRetry(),
		logger:     log.WithComponent("alphavantage"),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
	}
}

// Query calls function with params and returns the raw JSON body.
// Failures are *callcache.FetchError so the call cache can tell whether quota was spent.
func (c *Client) Query(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindTransport, Err: ErrNoAPIKey}
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindTransport, Reached: true, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		kind := callcache.KindHTTP
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = callcache.KindThrottled
		}
		return nil, &callcache.FetchError{
			Provider:   providers.AlphaVantage,
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Reached:    true,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	if err := checkBody(body); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"function": function,
			"symbol":   params["symbol"],
			"error":    err.Error(),
		}).Warn("Alpha Vantage rejected request")
		return nil, err
	}

	return body, nil
}

// checkBody turns the API's in-band error messages into FetchErrors.
// Alpha Vantage answers 200 for errors and puts the reason in the body.
func checkBody(body []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindMalformed, Reached: true, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	if msg, ok := message(envelope, "Error Message"); ok {
		return &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindMalformed, Reached: true, Err: errors.New(msg)}
	}

	for _, k := range []string{"Note", "Information"} {
		msg, ok := message(envelope, k)
		if !ok {
			continue
		}
		kind := callcache.KindThrottled
		if strings.Contains(strings.ToLower(msg), "premium") {
			kind = callcache.KindMalformed
		}
		return &callcache.FetchError{Provider: providers.AlphaVantage, Kind: kind, Reached: true, Err: errors.New(msg)}
	}

	if len(envelope) == 0 {
		return &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindMalformed, Reached: true, Err: errors.New("empty response")}
	}

	return nil
}

func message(envelope map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := envelope[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true
	}
	return s, true
}
