package callcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/kvstore"
)

// ledgerGrace keeps a window counter readable a little past its window
const ledgerGrace = time.Minute

// Usage is a provider's consumption in the current windows
type Usage struct {
	Provider        string `json:"provider"`
	MinuteCount     int64  `json:"minute_count"`
	DayCount        int64  `json:"day_count"`
	InFlight        int    `json:"in_flight"`
	QuotaPerMinute  int    `json:"quota_per_minute"`
	QuotaPerDay     int    `json:"quota_per_day"`
	MinuteRemaining int    `json:"minute_remaining"` // -1 when unlimited
	DayRemaining    int    `json:"day_remaining"`    // -1 when unlimited
}

// ledger counts provider calls per UTC minute and day. Counters only grow within a
// window; a new window starts from a new key.
type ledger struct {
	store kvstore.Store

	// one lock per provider so check-and-reserve is atomic without cross-provider contention
	locks    map[string]*sync.Mutex
	mu       sync.Mutex
	inflight map[string]int
}

func newLedger(store kvstore.Store, reg *providers.Registry) *ledger {
	l := &ledger{
		store:    store,
		locks:    make(map[string]*sync.Mutex),
		inflight: make(map[string]int),
	}
	for _, id := range reg.IDs() {
		l.locks[id] = &sync.Mutex{}
	}
	return l
}

func (l *ledger) count(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt ledger counter %s: %w", key, err)
	}
	return n, nil
}

// reserve admits one call for p at now, or returns *RateLimitedError.
// An admitted call must be finished with settle.
func (l *ledger) reserve(ctx context.Context, p providers.Provider, now time.Time) error {
	lock := l.locks[p.ID]
	lock.Lock()
	defer lock.Unlock()

	if p.Quota.PerMinute == 0 && p.Quota.PerDay == 0 {
		l.addInflight(p.ID, 1)
		return nil
	}

	inflight := int64(l.inflightOf(p.ID))

	if p.Quota.PerMinute > 0 {
		n, err := l.count(ctx, minuteKey(p.ID, now))
		if err != nil {
			return fmt.Errorf("read minute ledger: %w", err)
		}
		if n+inflight >= int64(p.Quota.PerMinute) {
			return &RateLimitedError{
				Provider:   p.ID,
				Window:     "minute",
				Count:      n + inflight,
				Quota:      p.Quota.PerMinute,
				RetryAfter: untilNextMinute(now),
			}
		}
	}

	if p.Quota.PerDay > 0 {
		n, err := l.count(ctx, dayKey(p.ID, now))
		if err != nil {
			return fmt.Errorf("read day ledger: %w", err)
		}
		if n+inflight >= int64(p.Quota.PerDay) {
			return &RateLimitedError{
				Provider:   p.ID,
				Window:     "day",
				Count:      n + inflight,
				Quota:      p.Quota.PerDay,
				RetryAfter: untilNextDay(now),
			}
		}
	}

	l.addInflight(p.ID, 1)
	return nil
}

// settle releases a reservation, counting the call once when it reached the provider.
// The counters are written before the reservation is dropped so no admission can slip in between.
func (l *ledger) settle(ctx context.Context, providerID string, now time.Time, counted bool) error {
	lock := l.locks[providerID]
	lock.Lock()
	defer lock.Unlock()
	defer l.addInflight(providerID, -1)

	if !counted {
		return nil
	}

	if _, err := l.store.Incr(ctx, minuteKey(providerID, now), time.Minute+ledgerGrace); err != nil {
		return fmt.Errorf("increment minute ledger: %w", err)
	}
	if _, err := l.store.Incr(ctx, dayKey(providerID, now), 24*time.Hour+ledgerGrace); err != nil {
		return fmt.Errorf("increment day ledger: %w", err)
	}
	return nil
}

func (l *ledger) usage(ctx context.Context, p providers.Provider, now time.Time) (Usage, error) {
	m, err := l.count(ctx, minuteKey(p.ID, now))
	if err != nil {
		return Usage{}, err
	}
	d, err := l.count(ctx, dayKey(p.ID, now))
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		Provider:        p.ID,
		MinuteCount:     m,
		DayCount:        d,
		InFlight:        l.inflightOf(p.ID),
		QuotaPerMinute:  p.Quota.PerMinute,
		QuotaPerDay:     p.Quota.PerDay,
		MinuteRemaining: remaining(p.Quota.PerMinute, m),
		DayRemaining:    remaining(p.Quota.PerDay, d),
	}, nil
}

func remaining(quota int, used int64) int {
	if quota == 0 {
		return -1
	}
	if left := quota - int(used); left > 0 {
		return left
	}
	return 0
}

func (l *ledger) addInflight(id string, delta int) {
	l.mu.Lock()
	l.inflight[id] += delta
	l.mu.Unlock()
}

func (l *ledger) inflightOf(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[id]
}
