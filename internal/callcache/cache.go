// Package callcache deduplicates and rate-limits outbound provider calls.
package callcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
)

// FetchFunc performs the outbound call and returns the raw payload
type FetchFunc func(ctx context.Context) ([]byte, error)

// Entry is a stored provider response
type Entry struct {
	Payload    []byte    `json:"payload"`
	FetchedAt  time.Time `json:"fetched_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
}

// Age returns how old the entry is at now
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Fresh reports whether the entry is within its TTL at now. Age equal to TTL is still fresh.
func (e Entry) Fresh(now time.Time) bool {
	return e.Age(now) <= time.Duration(e.TTLSeconds)*time.Second
}

// Cache is the rate-limited call cache shared by every fetcher
// ⭐ SSOT: 외부 프로바이더 호출은 반드시 GetOrFetch를 거침
type Cache struct {
	store          kvstore.Store
	registry       *providers.Registry
	ledger         *ledger
	group          singleflight.Group
	now            func() time.Time
	staleRetention time.Duration
	flightTimeout  time.Duration
	logger         *logger.Logger
	metrics        *metrics.Recorder
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStaleRetention keeps expired entries readable through GetStale for d
func WithStaleRetention(d time.Duration) Option {
	return func(c *Cache) { c.staleRetention = d }
}

// WithFlightTimeout bounds one shared provider call, independent of any caller's context
func WithFlightTimeout(d time.Duration) Option {
	return func(c *Cache) { c.flightTimeout = d }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) { c.logger = log }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a call cache over store for the providers in reg
func New(store kvstore.Store, reg *providers.Registry, opts ...Option) *Cache {
	c := &Cache{
		store:          store,
		registry:       reg,
		ledger:         newLedger(store, reg),
		now:            time.Now,
		staleRetention: 24 * time.Hour,
		flightTimeout:  30 * time.Second,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached payload for (provider, endpoint, params) when it is
// at most ttl old. Otherwise it checks the provider quota and calls fetch once, even
// when many callers miss the same key at the same time.
func (c *Cache) GetOrFetch(ctx context.Context, providerID, endpointID string, params map[string]string, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	p, ok := c.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	key := CallKey(providerID, endpointID, params)

	if entry, ok := c.lookup(ctx, key); ok && entry.Fresh(c.now()) {
		c.metrics.RecordCacheLookup(providerID, "hit")
		return entry.Payload, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The flight serves every joiner, so the caller that started it must not cancel it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		// A flight that finished just before this one may have refreshed the key
		if entry, ok := c.lookup(fctx, key); ok && entry.Fresh(c.now()) {
			c.metrics.RecordCacheLookup(providerID, "hit")
			return entry.Payload, nil
		}
		c.metrics.RecordCacheLookup(providerID, "miss")
		return c.fetch(fctx, p, endpointID, key, ttl, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordCacheLookup(providerID, "shared")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Cache) fetch(ctx context.Context, p providers.Provider, endpointID, key string, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if err := c.ledger.reserve(ctx, p, c.now()); err != nil {
		var rl *RateLimitedError
		if errors.As(err, &rl) {
			c.metrics.RecordRateLimited(p.ID, rl.Window)
			c.logger.WithFields(map[string]interface{}{
				"provider": p.ID,
				"endpoint": endpointID,
				"window":   rl.Window,
				"count":    rl.Count,
				"quota":    rl.Quota,
			}).Warn("Provider quota exhausted, call refused")
		}
		return nil, err
	}

	start := time.Now()
	payload, err := fetch(ctx)
	elapsed := time.Since(start).Seconds()
	done := c.now()

	counted := err == nil || reached(err)
	if serr := c.ledger.settle(context.WithoutCancel(ctx), p.ID, done, counted); serr != nil {
		c.logger.WithError(serr).WithField("provider", p.ID).Error("Failed to update rate ledger")
	}

	if err != nil {
		c.metrics.RecordProviderCall(p.ID, "error", elapsed)
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"provider": p.ID,
			"endpoint": endpointID,
			"counted":  counted,
		}).Warn("Provider fetch failed")
		return nil, err
	}
	c.metrics.RecordProviderCall(p.ID, "ok", elapsed)

	entry := Entry{
		Payload:    payload,
		FetchedAt:  done,
		TTLSeconds: int64(ttl / time.Second),
	}
	if err := c.save(context.WithoutCancel(ctx), key, entry, ttl); err != nil {
		// The caller still gets the payload; the next lookup just misses
		c.logger.WithError(err).WithField("key", key).Error("Failed to store cached call")
	}

	return payload, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed, treating as miss")
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Corrupt cache entry, treating as miss")
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) save(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Physical expiry outlives the logical TTL so stale reads stay possible
	expiry := ttl
	if c.staleRetention > expiry {
		expiry = c.staleRetention
	}
	return c.store.Set(ctx, key, raw, expiry)
}

// Peek returns the stored entry for the call regardless of its age
func (c *Cache) Peek(ctx context.Context, providerID, endpointID string, params map[string]string) (Entry, bool) {
	return c.lookup(ctx, CallKey(providerID, endpointID, params))
}

// FetchedAt returns when the call was last fetched
func (c *Cache) FetchedAt(ctx context.Context, providerID, endpointID string, params map[string]string) (time.Time, bool) {
	entry, ok := c.Peek(ctx, providerID, endpointID, params)
	if !ok {
		return time.Time{}, false
	}
	return entry.FetchedAt, true
}

// GetStale returns an expired payload still within the stale retention window.
// Callers use it after ErrRateLimited when stale data beats no data.
func (c *Cache) GetStale(ctx context.Context, providerID, endpointID string, params map[string]string) (Entry, bool) {
	entry, ok := c.Peek(ctx, providerID, endpointID, params)
	if !ok || entry.Age(c.now()) > c.staleRetention {
		return Entry{}, false
	}
	c.metrics.RecordCacheLookup(providerID, "stale")
	return entry, true
}

// Usage reports the provider's ledger counts for the current windows
func (c *Cache) Usage(ctx context.Context, providerID string) (Usage, error) {
	p, ok := c.registry.Get(providerID)
	if !ok {
		return Usage{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return c.ledger.usage(ctx, p, c.now())
}

// Now returns the cache clock's current time
func (c *Cache) Now() time.Time {
	return c.now()
}
