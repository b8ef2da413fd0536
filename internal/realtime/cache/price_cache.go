package cache

import (
	"sync"
	"time"

	"github.com/wonny/tradepulse/internal/realtime"
	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
)

// PriceCache is an in-memory cache for real-time prices
// ⭐ SSOT: 실시간 가격 캐싱은 이 구조체에서만
type PriceCache struct {
	mu      sync.RWMutex
	prices  map[string]realtime.PriceTick
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Recorder
}

// CacheStats summarises the cache contents
type CacheStats struct {
	TotalCount   int            `json:"total_count"`
	StaleCount   int            `json:"stale_count"`
	BySource     map[string]int `json:"by_source"`
	OldestUpdate time.Time      `json:"oldest_update,omitempty"`
}

// NewPriceCache creates a new price cache
func NewPriceCache(ttl time.Duration, log *logger.Logger, m *metrics.Recorder) *PriceCache {
	return &PriceCache{
		prices:  make(map[string]realtime.PriceTick),
		ttl:     ttl,
		now:     time.Now,
		logger:  log.WithComponent("price_cache"),
		metrics: m,
	}
}

// SetClock overrides the time source
func (c *PriceCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Update updates price in cache
// Only accepts newer data, or same-time data from a higher priority source
func (c *PriceCache) Update(tick realtime.PriceTick) bool {
	if tick.Symbol == "" || tick.Price <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.prices[tick.Symbol]; exists {
		// Don't accept older data
		if tick.Timestamp.Before(existing.Timestamp) {
			return false
		}

		// Accept same timestamp only from higher priority source
		if tick.Timestamp.Equal(existing.Timestamp) &&
			realtime.PriceSource(tick.Source).Priority() <= realtime.PriceSource(existing.Source).Priority() {
			return false
		}
	}

	tick.IsStale = c.now().Sub(tick.Timestamp) > c.ttl
	c.prices[tick.Symbol] = tick
	c.metrics.RecordLastPrice(tick.Symbol, tick.Price)

	return true
}

// Get retrieves price from cache
func (c *PriceCache) Get(symbol string) (realtime.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, exists := c.prices[symbol]
	if !exists {
		return realtime.PriceTick{}, false
	}
	tick.IsStale = c.now().Sub(tick.Timestamp) > c.ttl
	return tick, true
}

// Latest returns the last fresh price for symbol. Stale ticks are not served.
func (c *PriceCache) Latest(symbol string) (float64, time.Time, bool) {
	tick, ok := c.Get(symbol)
	if !ok || tick.IsStale {
		return 0, time.Time{}, false
	}
	return tick.Price, tick.Timestamp, true
}

// GetAll retrieves all prices from cache
func (c *PriceCache) GetAll() map[string]realtime.PriceTick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	result := make(map[string]realtime.PriceTick, len(c.prices))
	for symbol, tick := range c.prices {
		tick.IsStale = now.Sub(tick.Timestamp) > c.ttl
		result[symbol] = tick
	}
	return result
}

// Len returns the number of prices in cache
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.prices)
}

// CleanStale removes stale prices from cache
func (c *PriceCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for symbol, tick := range c.prices {
		if now.Sub(tick.Timestamp) > c.ttl {
			delete(c.prices, symbol)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale prices from cache")
	}
	return count
}

// Stats returns cache statistics
func (c *PriceCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		TotalCount: len(c.prices),
		BySource:   make(map[string]int),
	}

	now := c.now()
	for _, tick := range c.prices {
		if now.Sub(tick.Timestamp) > c.ttl {
			stats.StaleCount++
		}
		stats.BySource[tick.Source]++
		if stats.OldestUpdate.IsZero() || tick.Timestamp.Before(stats.OldestUpdate) {
			stats.OldestUpdate = tick.Timestamp
		}
	}
	return stats
}
