package callcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/kvstore"
)

const testCatalog = `
providers:
  - id: limited
    name: Limited
    auth_type: api_key
    base_url: https://limited.example
    quota: {per_minute: 3, per_day: 5}
    endpoints: [{id: RSI}, {id: MACD}]
  - id: open
    name: Open
    auth_type: none
    base_url: https://open.example
    endpoints: [{id: quote}]
`

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *testClock) {
	t.Helper()
	reg, err := providers.Parse([]byte(testCatalog), nil)
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)}
	store := kvstore.NewMemory(kvstore.WithClock(clock.Now))
	return New(store, reg, WithClock(clock.Now), WithStaleRetention(24*time.Hour)), clock
}

type countingFetch struct {
	calls atomic.Int32
	body  string
	err   error
}

func (f *countingFetch) fn(context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func TestGetOrFetch_Idempotent(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t)
	f := &countingFetch{body: `{"rsi":42}`}
	params := map[string]string{"symbol": "AAPL", "time_period": "14"}

	first, err := cache.GetOrFetch(ctx, "limited", "RSI", params, 30*time.Minute, f.fn)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	second, err := cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"time_period": "14", "symbol": "AAPL"}, 30*time.Minute, f.fn)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, f.calls.Load())

	usage, err := cache.Usage(ctx, "limited")
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.DayCount)
}

func TestGetOrFetch_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t)
	f := &countingFetch{body: `{}`}
	params := map[string]string{"symbol": "MSFT"}

	_, err := cache.GetOrFetch(ctx, "limited", "RSI", params, 1800*time.Second, f.fn)
	require.NoError(t, err)

	clock.Advance(1800 * time.Second)
	_, err = cache.GetOrFetch(ctx, "limited", "RSI", params, 1800*time.Second, f.fn)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls.Load(), "age equal to ttl is still a hit")

	clock.Advance(time.Second)
	_, err = cache.GetOrFetch(ctx, "limited", "RSI", params, 1800*time.Second, f.fn)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load(), "age ttl+1 must refetch exactly once")
}

func TestGetOrFetch_RateLimit(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	f := &countingFetch{body: `{}`}

	for i := 0; i < 3; i++ {
		_, err := cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"symbol": fmt.Sprintf("S%d", i)}, time.Hour, f.fn)
		require.NoError(t, err)
	}

	_, err := cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"symbol": "S3"}, time.Hour, f.fn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, IsRateLimited(err))
	assert.EqualValues(t, 3, f.calls.Load(), "quota+1-th call must not invoke fetch")

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "minute", rl.Window)
	assert.Equal(t, 3, rl.Quota)
	assert.Equal(t, time.Minute, rl.RetryAfter)

	// Cached keys are still served while limited
	_, err = cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"symbol": "S0"}, time.Hour, f.fn)
	assert.NoError(t, err)
}

func TestGetOrFetch_WindowRollover(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t)
	f := &countingFetch{body: `{}`}
	call := func(sym string) error {
		_, err := cache.GetOrFetch(ctx, "limited", "MACD", map[string]string{"symbol": sym}, time.Hour, f.fn)
		return err
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, call(fmt.Sprintf("A%d", i)))
	}
	require.ErrorIs(t, call("A3"), ErrRateLimited)

	// Next minute: the minute window resets but the day window keeps counting
	clock.Advance(time.Minute)
	require.NoError(t, call("B0"))
	require.NoError(t, call("B1"))

	err := call("B2")
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "day", rl.Window)
	assert.EqualValues(t, 5, f.calls.Load())
}

func TestGetOrFetch_FailuresNotCached(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	params := map[string]string{"symbol": "AAPL"}

	transport := &countingFetch{err: &FetchError{Provider: "limited", Kind: KindTransport, Err: errors.New("dial tcp: timeout")}}
	_, err := cache.GetOrFetch(ctx, "limited", "RSI", params, time.Hour, transport.fn)
	require.Error(t, err)

	usage, err := cache.Usage(ctx, "limited")
	require.NoError(t, err)
	assert.EqualValues(t, 0, usage.MinuteCount, "unreached call must not be counted")
	assert.Equal(t, 0, usage.InFlight)

	httpErr := &countingFetch{err: &FetchError{Provider: "limited", Kind: KindHTTP, StatusCode: 500, Reached: true, Err: errors.New("boom")}}
	_, err = cache.GetOrFetch(ctx, "limited", "RSI", params, time.Hour, httpErr.fn)
	require.Error(t, err)

	usage, err = cache.Usage(ctx, "limited")
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.MinuteCount, "answered call is counted")

	_, ok := cache.Peek(ctx, "limited", "RSI", params)
	assert.False(t, ok, "failures must not be cached")

	ok1 := &countingFetch{body: `{"ok":true}`}
	payload, err := cache.GetOrFetch(ctx, "limited", "RSI", params, time.Hour, ok1.fn)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(payload))
	assert.EqualValues(t, 1, ok1.calls.Load())
}

func TestGetOrFetch_Singleflight(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`{"v":1}`), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"symbol": "NVDA"}, time.Hour, fetch)
		}(i)
	}

	// Let the callers pile up on the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, `{"v":1}`, string(results[i]))
	}
	assert.EqualValues(t, 1, calls.Load())

	usage, err := cache.Usage(ctx, "limited")
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.MinuteCount)
}

func TestGetOrFetch_LeaderCancelDoesNotFailJoiners(t *testing.T) {
	cache, _ := newTestCache(t)

	var calls atomic.Int32
	started := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return []byte(`{"v":2}`), nil
		}
	}
	params := map[string]string{"symbol": "AAPL"}

	leaderCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.GetOrFetch(leaderCtx, "limited", "MACD", params, time.Hour, fetch)
		leaderErr <- err
	}()
	<-started

	payload, err := cache.GetOrFetch(context.Background(), "limited", "MACD", params, time.Hour, fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(payload))
	assert.ErrorIs(t, <-leaderErr, context.DeadlineExceeded)
	assert.EqualValues(t, 1, calls.Load())

	// the shared result was stored
	payload, err = cache.GetOrFetch(context.Background(), "limited", "MACD", params, time.Hour, fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(payload))
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrFetch_FlightTimeout(t *testing.T) {
	reg, err := providers.Parse([]byte(testCatalog), nil)
	require.NoError(t, err)
	cache := New(kvstore.NewMemory(), reg, WithFlightTimeout(20*time.Millisecond))

	fetch := func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err = cache.GetOrFetch(context.Background(), "open", "quote", nil, time.Minute, fetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetOrFetch_ConcurrentDistinctKeysRespectQuota(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`{}`), nil
	}

	var wg sync.WaitGroup
	var limited atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := cache.GetOrFetch(ctx, "limited", "RSI", map[string]string{"symbol": fmt.Sprintf("K%d", i)}, time.Hour, fetch)
			if errors.Is(err, ErrRateLimited) {
				limited.Add(1)
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 3, calls.Load(), "in-flight reservations count against quota")
	assert.EqualValues(t, 5, limited.Load())
}

func TestGetOrFetch_UnknownProvider(t *testing.T) {
	cache, _ := newTestCache(t)
	f := &countingFetch{body: `{}`}

	_, err := cache.GetOrFetch(context.Background(), "ghost", "x", nil, time.Minute, f.fn)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.EqualValues(t, 0, f.calls.Load())

	_, err = cache.Usage(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGetOrFetch_UnlimitedProvider(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	f := &countingFetch{body: `{}`}

	for i := 0; i < 20; i++ {
		_, err := cache.GetOrFetch(ctx, "open", "quote", map[string]string{"symbol": fmt.Sprint(i)}, time.Minute, f.fn)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 20, f.calls.Load())

	usage, err := cache.Usage(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, -1, usage.MinuteRemaining)
	assert.EqualValues(t, 20, usage.DayCount)
}

func TestGetStale(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t)
	f := &countingFetch{body: `{"p":1}`}
	params := map[string]string{"symbol": "AAPL"}

	_, err := cache.GetOrFetch(ctx, "limited", "RSI", params, 30*time.Minute, f.fn)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	entry, ok := cache.GetStale(ctx, "limited", "RSI", params)
	require.True(t, ok)
	assert.Equal(t, `{"p":1}`, string(entry.Payload))
	assert.False(t, entry.Fresh(clock.Now()))

	fetchedAt, ok := cache.FetchedAt(ctx, "limited", "RSI", params)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, clock.Now().Sub(fetchedAt))

	clock.Advance(23 * time.Hour)
	_, ok = cache.GetStale(ctx, "limited", "RSI", params)
	assert.False(t, ok)
}

func TestCallKey(t *testing.T) {
	a := CallKey("alpha_vantage", "RSI", map[string]string{"symbol": "AAPL", "interval": "daily", "time_period": "14"})
	b := CallKey("alpha_vantage", "RSI", map[string]string{"time_period": "14", "symbol": "AAPL", "interval": "daily"})

	assert.Equal(t, a, b)
	assert.Equal(t, "call:alpha_vantage:RSI:interval=daily&symbol=AAPL&time_period=14", a)
	assert.Equal(t, "call:p:e:", CallKey("p", "e", nil))
}

func TestIsRateLimited_ProviderThrottle(t *testing.T) {
	throttled := fmt.Errorf("fetch rsi: %w", &FetchError{Provider: "alpha_vantage", Kind: KindThrottled, Reached: true, Err: errors.New("note")})
	assert.True(t, IsRateLimited(throttled))
	assert.False(t, errors.Is(throttled, ErrRateLimited))

	assert.False(t, IsRateLimited(&FetchError{Kind: KindHTTP}))
	assert.False(t, IsRateLimited(errors.New("other")))
}
