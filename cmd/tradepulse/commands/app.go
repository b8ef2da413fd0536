package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/tradepulse/internal/callcache"
	"github.com/wonny/tradepulse/internal/directives"
	"github.com/wonny/tradepulse/internal/external/alpaca"
	"github.com/wonny/tradepulse/internal/external/alphavantage"
	"github.com/wonny/tradepulse/internal/external/finnhub"
	"github.com/wonny/tradepulse/internal/freshness"
	"github.com/wonny/tradepulse/internal/indicators"
	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/internal/realtime/cache"
	"github.com/wonny/tradepulse/internal/realtime/feed"
	"github.com/wonny/tradepulse/internal/scoring"
	"github.com/wonny/tradepulse/internal/strategyconfig"
	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/database"
	"github.com/wonny/tradepulse/pkg/httputil"
	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
	"github.com/wonny/tradepulse/pkg/metrics"
	"github.com/wonny/tradepulse/pkg/redis"
)

// app is the wired dependency graph shared by every command
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	gatherer *prometheus.Registry
	metrics  *metrics.Recorder

	store     kvstore.Store
	providers *providers.Registry
	calls     *callcache.Cache
	prices    *cache.PriceCache
	feed      *feed.FeedManager

	profile  *strategyconfig.Config
	snapshot *strategyconfig.Snapshot
	engine   *scoring.Engine
}

// newApp loads config and wires everything. withStream starts the Finnhub feed
// when a key is configured.
func newApp(ctx context.Context, withStream bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if strategyFile != "" {
		cfg.StrategyConfig = strategyFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// stdout is reserved for command output
	log := logger.NewWithWriter(cfg, os.Stderr)
	a := &app{cfg: cfg, log: log}

	if cfg.MetricsEnabled {
		a.gatherer = prometheus.NewRegistry()
		a.gatherer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(a.gatherer)
	}

	if a.store, err = openStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	if a.providers, err = loadProviders(cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.calls = callcache.New(a.store, a.providers,
		callcache.WithStaleRetention(cfg.Cache.StaleRetention),
		callcache.WithFlightTimeout(cfg.Cache.FetchTimeout),
		callcache.WithLogger(log),
		callcache.WithMetrics(a.metrics),
	)

	avQuota, _ := a.providers.Get(providers.AlphaVantage)
	httpClient := httputil.New(cfg, log).WithRateLimit(avQuota.Quota.PerMinute, avQuota.Quota.PerMinute)
	av := alphavantage.NewClient(cfg.AlphaVantage, httpClient, log)
	alp := alpaca.NewClient(cfg.Alpaca, cfg.Cache.HTTPTimeout, log)

	a.prices = cache.NewPriceCache(indicators.PriceMaxAge, log, a.metrics)
	if withStream && cfg.Finnhub.APIKey != "" {
		a.feed = feed.NewFeedManager(finnhub.NewClient(cfg.Finnhub, log), a.prices, log)
		a.feed.Start(ctx)
	}

	if err := a.loadProfile(); err != nil {
		a.Close()
		return nil, err
	}

	reg := directives.NewRegistry(a.profile.RegistryOptions()...)
	set := indicators.NewSet(a.calls, av, alp, a.prices, log)
	validator := freshness.New(a.calls, log,
		freshness.WithStrict(a.profile.StrictFreshness(cfg.Freshness.Strict)),
		freshness.WithMetrics(a.metrics),
	)

	a.engine = scoring.New(reg, set, validator, log,
		scoring.WithFetchTimeout(cfg.Cache.FetchTimeout),
		scoring.WithDefaultDirectives(a.profile.Scoring.DefaultDirectives),
		scoring.WithProfile(a.snapshot),
		scoring.WithMetrics(a.metrics),
	)

	log.WithFields(map[string]interface{}{
		"store":      cfg.StoreBackend,
		"strategy":   a.snapshot.StrategyID,
		"directives": len(reg.IDs()),
		"strict":     validator.Strict(),
		"stream":     a.feed != nil,
	}).Debug("Application wired")

	return a, nil
}

func (a *app) loadProfile() error {
	if a.cfg.StrategyConfig == "" {
		a.profile = strategyconfig.Default()
	} else {
		profile, _, err := strategyconfig.Load(a.cfg.StrategyConfig)
		if err != nil {
			return fmt.Errorf("load strategy profile: %w", err)
		}
		a.profile = profile
	}

	for _, w := range strategyconfig.Warn(a.profile) {
		a.log.WithFields(map[string]interface{}{
			"code": w.Code,
		}).Warn(w.Message)
	}

	snapshot, err := strategyconfig.NewSnapshot(a.profile)
	if err != nil {
		return fmt.Errorf("snapshot strategy profile: %w", err)
	}
	a.snapshot = snapshot
	return nil
}

// Close releases the feed and the store
func (a *app) Close() {
	if a.feed != nil {
		a.feed.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close store")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (kvstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := redis.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.WithField("prefix", client.Prefix()).Info("Connected to Redis")
		return redis.NewStore(client), nil

	case config.StorePostgres:
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		store := database.NewKVStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("prepare kv schema: %w", err)
		}
		log.Info("Connected to database")
		return store, nil

	default:
		return kvstore.NewMemory(), nil
	}
}

// loadProviders applies ALPHA_VANTAGE_QUOTA_* over the catalog quota
func loadProviders(cfg *config.Config) (*providers.Registry, error) {
	catalog, err := providers.Load(nil)
	if err != nil {
		return nil, err
	}

	av, ok := catalog.Get(providers.AlphaVantage)
	if !ok || (cfg.AlphaVantage.QuotaPerMinute <= 0 && cfg.AlphaVantage.QuotaPerDay <= 0) {
		return catalog, nil
	}

	quota := av.Quota
	if cfg.AlphaVantage.QuotaPerMinute > 0 {
		quota.PerMinute = cfg.AlphaVantage.QuotaPerMinute
	}
	if cfg.AlphaVantage.QuotaPerDay > 0 {
		quota.PerDay = cfg.AlphaVantage.QuotaPerDay
	}
	return providers.Load(map[string]providers.Quota{providers.AlphaVantage: quota})
}
