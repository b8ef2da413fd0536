package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
)

type fakeLookup map[string]time.Time

func (f fakeLookup) FetchedAt(_ context.Context, provider, endpoint string, _ map[string]string) (time.Time, bool) {
	at, ok := f[provider+":"+endpoint]
	return at, ok
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	lookup := fakeLookup{
		"alpha_vantage:RSI":               now.Add(-10 * time.Minute),
		"alpha_vantage:MACD":              now.Add(-45 * time.Minute),
		"alpha_vantage:TIME_SERIES_DAILY": now.Add(-2 * time.Hour),
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	v := New(lookup, logger.Nop(), WithClock(func() time.Time { return now }), WithMetrics(m))

	report := v.Validate(context.Background(), "AAPL", "score", []Requirement{
		{Key: "rsi", Provider: "alpha_vantage", Endpoint: "RSI", MaxAge: 30 * time.Minute},
		{Key: "macd", Provider: "alpha_vantage", Endpoint: "MACD", MaxAge: 30 * time.Minute},
		{Key: "bars", Provider: "alpha_vantage", Endpoint: "TIME_SERIES_DAILY", MaxAge: 24 * time.Hour},
		{Key: "adx", Provider: "alpha_vantage", Endpoint: "ADX", MaxAge: 30 * time.Minute},
		{Key: "quote", Provider: "finnhub", Endpoint: "trades", MaxAge: 15 * time.Minute, ObservedAt: now.Add(-time.Minute)},
	})

	assert.False(t, report.Passed)
	assert.False(t, report.Strict)
	assert.Equal(t, "AAPL", report.Symbol)
	require.Len(t, report.Checks, 5)

	assert.True(t, report.Checks[0].Fresh)
	assert.Equal(t, 600.0, report.Checks[0].AgeSeconds)
	assert.False(t, report.Checks[1].Fresh)
	assert.False(t, report.Checks[1].Missing)
	assert.True(t, report.Checks[2].Fresh)
	assert.True(t, report.Checks[3].Missing)
	assert.True(t, report.Checks[4].Fresh)

	assert.Equal(t, []string{"adx", "macd"}, report.Failed())
	series, err := testutil.GatherAndCount(reg, "tradepulse_stale_inputs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestValidate_AllFresh(t *testing.T) {
	now := time.Now()
	v := New(fakeLookup{"p:e": now}, nil, WithStrict(true), WithClock(func() time.Time { return now }))

	report := v.Validate(context.Background(), "MSFT", "score", []Requirement{
		{Key: "k", Provider: "p", Endpoint: "e", MaxAge: time.Minute},
	})
	assert.True(t, report.Passed)
	assert.True(t, report.Strict)
	assert.True(t, v.Strict())
	assert.Empty(t, report.Failed())
}

func TestValidate_Empty(t *testing.T) {
	v := New(nil, logger.Nop())
	report := v.Validate(context.Background(), "AAPL", "score", nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Checks)
}
