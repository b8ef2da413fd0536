package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/contracts"
	"github.com/wonny/tradepulse/internal/directives"
	"github.com/wonny/tradepulse/internal/freshness"
	"github.com/wonny/tradepulse/internal/indicators"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
)

const rsiBody = `{
  "Technical Analysis: RSI": {
    "2024-01-05": {"RSI": "24.0000"},
    "2024-01-04": {"RSI": "27.5000"}
  }
}`

const macdBody = `{
  "Technical Analysis: MACD": {
    "2024-01-05": {"MACD": "1.5", "MACD_Signal": "1.1", "MACD_Hist": "0.4"},
    "2024-01-04": {"MACD": "1.0", "MACD_Signal": "1.2", "MACD_Hist": "-0.2"}
  }
}`

type fakeQuerier struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		bodies: map[string]string{"RSI": rsiBody, "MACD": macdBody},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (q *fakeQuerier) Query(_ context.Context, function string, _ map[string]string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls[function]++
	if err := q.errs[function]; err != nil {
		return nil, err
	}
	body, ok := q.bodies[function]
	if !ok {
		return nil, &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindMalformed, Reached: true, Err: errors.New("no fixture")}
	}
	return []byte(body), nil
}

func (q *fakeQuerier) count(function string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[function]
}

type fixedPrice float64

func (p fixedPrice) Latest(string) (float64, time.Time, bool) {
	return float64(p), testNow, p > 0
}

var testNow = time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC)

type harness struct {
	engine  *Engine
	querier *fakeQuerier
}

func newHarness(t *testing.T, validatorClock time.Time, strict bool, opts ...Option) *harness {
	t.Helper()

	reg, err := providers.Load(map[string]providers.Quota{providers.AlphaVantage: {}})
	require.NoError(t, err)

	now := func() time.Time { return testNow }
	store := kvstore.NewMemory(kvstore.WithClock(now))
	cache := callcache.New(store, reg, callcache.WithClock(now))

	q := newFakeQuerier()
	set := indicators.NewSet(cache, q, nil, fixedPrice(190), logger.Nop())
	v := freshness.New(cache, logger.Nop(),
		freshness.WithStrict(strict),
		freshness.WithClock(func() time.Time { return validatorClock }),
	)

	opts = append([]Option{WithClock(now)}, opts...)
	return &harness{
		engine:  New(directives.NewRegistry(), set, v, logger.Nop(), opts...),
		querier: q,
	}
}

func TestScore_FetchesEachInputOnce(t *testing.T) {
	h := newHarness(t, testNow, false)

	report, err := h.engine.Score(context.Background(), " aapl ", []string{"rsi", "macd", "rsi", "technical_momentum"})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, []string{"rsi", "macd", "technical_momentum"}, report.Directives)
	assert.Equal(t, 1, h.querier.count("RSI"))
	assert.Equal(t, 1, h.querier.count("MACD"))
	assert.True(t, report.Freshness.Passed)

	rsi := report.Results["rsi"]
	assert.Equal(t, contracts.StatusOK, rsi.Status)
	assert.Greater(t, rsi.Score, 50.0)

	macd := report.Results["macd"]
	assert.Equal(t, contracts.StatusOK, macd.Status)

	for _, r := range report.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, r.MaxScore)
	}
}

func TestScore_FetchFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, testNow, false)
	h.querier.errs["RSI"] = &callcache.FetchError{Provider: providers.AlphaVantage, Kind: callcache.KindHTTP, StatusCode: 502, Reached: true, Err: errors.New("bad gateway")}

	report, err := h.engine.Score(context.Background(), "AAPL", []string{"rsi", "macd"})
	require.NoError(t, err)

	rsi := report.Results["rsi"]
	assert.Equal(t, contracts.StatusNoData, rsi.Status)
	assert.Equal(t, 50.0, rsi.Score)
	assert.Equal(t, directives.FailureFetchError, rsi.Failure())

	assert.Equal(t, contracts.StatusOK, report.Results["macd"].Status)

	var failed int
	for _, in := range report.Inputs {
		if in.Error != "" {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestScore_Freshness(t *testing.T) {
	later := testNow.Add(2 * time.Hour)

	t.Run("advisory", func(t *testing.T) {
		h := newHarness(t, later, false)
		report, err := h.engine.Score(context.Background(), "AAPL", []string{"rsi"})
		require.NoError(t, err)

		assert.False(t, report.Freshness.Passed)
		assert.Equal(t, contracts.StatusOK, report.Results["rsi"].Status)
	})

	t.Run("strict", func(t *testing.T) {
		h := newHarness(t, later, true)
		report, err := h.engine.Score(context.Background(), "AAPL", []string{"rsi"})
		require.NoError(t, err)

		assert.False(t, report.Freshness.Passed)
		rsi := report.Results["rsi"]
		assert.Equal(t, contracts.StatusStale, rsi.Status)
		assert.Equal(t, 50.0, rsi.Score)
		require.Len(t, report.Inputs, 1)
		assert.True(t, report.Inputs[0].Stale)
	})
}

func TestScore_RealtimeQuote(t *testing.T) {
	h := newHarness(t, testNow, true)

	data := directives.NewSymbolData("AAPL", testNow)
	statuses, reqs := h.engine.gather(context.Background(), data, []directives.Input{{Kind: directives.InputQuote}})

	require.NotNil(t, data.Quote)
	assert.Equal(t, 190.0, data.Quote.Price)
	assert.Equal(t, "realtime", statuses[0].Source)
	require.Len(t, reqs, 1)
	assert.Equal(t, testNow, reqs[0].ObservedAt)
	assert.Equal(t, indicators.PriceMaxAge, reqs[0].MaxAge)
}

func TestScore_Errors(t *testing.T) {
	h := newHarness(t, testNow, false)
	ctx := context.Background()

	_, err := h.engine.Score(ctx, "AAPL", []string{"rsi", "nope"})
	assert.ErrorIs(t, err, ErrUnknownDirective)

	_, err = h.engine.Score(ctx, "  ", []string{"rsi"})
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = h.engine.Score(ctx, "AAPL", nil)
	assert.ErrorIs(t, err, ErrNoDirectives)
}

func TestScore_DefaultDirectives(t *testing.T) {
	h := newHarness(t, testNow, false, WithDefaultDirectives([]string{"rsi"}))

	report, err := h.engine.Score(context.Background(), "MSFT", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rsi"}, report.Directives)
}

func TestMergeInputs_KeepsLongestLookback(t *testing.T) {
	merged := mergeInputs([]directives.Input{
		{Kind: directives.InputBars, Lookback: 21},
		{Kind: directives.InputIndicator, Indicator: "RSI", Params: map[string]string{"time_period": "14"}},
		{Kind: directives.InputBars, Lookback: 120},
		{Kind: directives.InputIndicator, Indicator: "RSI", Params: map[string]string{"time_period": "14"}},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, 120, merged[0].Lookback)
}

func TestDescribe(t *testing.T) {
	h := newHarness(t, testNow, false)

	desc, err := h.engine.Describe("rsi", directives.Params{"oversold": 25})
	require.NoError(t, err)
	assert.Equal(t, "rsi", desc.ID)
	assert.False(t, desc.Composite)
	assert.Equal(t, 25, desc.Params["oversold"])
	assert.Equal(t, 100.0, desc.MaxScore)
	assert.NotEmpty(t, desc.Explanation)
	assert.Len(t, desc.Inputs, 1)

	comp, err := h.engine.Describe("technical_momentum", nil)
	require.NoError(t, err)
	assert.True(t, comp.Composite)
	assert.NotEmpty(t, comp.Children)

	_, err = h.engine.Describe("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownDirective)

	assert.Len(t, h.engine.List(), len(h.engine.Registry().IDs()))
}
