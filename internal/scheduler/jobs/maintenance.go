package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/tradepulse/internal/realtime/cache"
	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
)

// PriceSweepJob drops streamed prices older than the cache TTL
type PriceSweepJob struct {
	cache  *cache.PriceCache
	logger *logger.Logger
}

// NewPriceSweepJob creates a new price sweep job
func NewPriceSweepJob(priceCache *cache.PriceCache, log *logger.Logger) *PriceSweepJob {
	return &PriceSweepJob{
		cache:  priceCache,
		logger: log,
	}
}

// Name returns the job name
func (j *PriceSweepJob) Name() string {
	return "price_sweep"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *PriceSweepJob) Schedule() string {
	return "*/5 * * * *"
}

// Run executes the sweep
func (j *PriceSweepJob) Run(ctx context.Context) error {
	count := j.cache.CleanStale()

	if count > 0 {
		j.logger.WithField("removed", count).Info("Price sweep completed")
	}

	return nil
}

// StoreGCJob removes expired call-cache entries and ledger counters from the
// key-value store. Redis expires keys itself; the memory and postgres stores need it.
type StoreGCJob struct {
	store  kvstore.Store
	logger *logger.Logger
}

// NewStoreGCJob creates a new store GC job
func NewStoreGCJob(store kvstore.Store, log *logger.Logger) *StoreGCJob {
	return &StoreGCJob{
		store:  store,
		logger: log,
	}
}

// Name returns the job name
func (j *StoreGCJob) Name() string {
	return "store_gc"
}

// Schedule returns the cron schedule (every 15 minutes)
func (j *StoreGCJob) Schedule() string {
	return "*/15 * * * *"
}

// Run executes the purge
func (j *StoreGCJob) Run(ctx context.Context) error {
	removed, err := j.store.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge store: %w", err)
	}

	j.logger.WithField("removed", removed).Debug("Store GC completed")
	return nil
}
