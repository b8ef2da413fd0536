package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/wonny/tradepulse/internal/external/finnhub"
	"github.com/wonny/tradepulse/internal/realtime"
	"github.com/wonny/tradepulse/internal/realtime/cache"
	"github.com/wonny/tradepulse/pkg/logger"
)

// TradeStream is a reconnecting trade source
type TradeStream interface {
	OnTrade(fn func(finnhub.Trade))
	Run(ctx context.Context) error
	IsConnected() bool
}

// FeedManager pipes streamed trades into the price cache
// ⭐ SSOT: 실시간 가격 피드 조율은 이 매니저에서만
type FeedManager struct {
	stream TradeStream
	cache  *cache.PriceCache
	logger *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedManager creates a new feed manager
func NewFeedManager(stream TradeStream, priceCache *cache.PriceCache, log *logger.Logger) *FeedManager {
	m := &FeedManager{
		stream: stream,
		cache:  priceCache,
		logger: log.WithComponent("feed"),
	}
	stream.OnTrade(m.handle)
	return m
}

func (m *FeedManager) handle(t finnhub.Trade) {
	m.cache.Update(realtime.PriceTick{
		Symbol:    t.Symbol,
		Price:     t.Price,
		Volume:    t.Volume,
		Timestamp: t.Time,
		Source:    string(realtime.SourceFinnhub),
	})
}

// Start runs the stream in the background until Stop or ctx cancellation
func (m *FeedManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info("Starting trade feed")
		if err := m.stream.Run(ctx); err != nil {
			if errors.Is(err, finnhub.ErrNoAPIKey) {
				m.logger.Warn("Trade feed disabled: no Finnhub API key")
				return
			}
			m.logger.WithError(err).Error("Trade feed stopped")
		}
	}()
}

// Stop stops the stream and waits for it to exit
func (m *FeedManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("Trade feed stopped")
}

// Connected reports whether the stream currently has a live connection
func (m *FeedManager) Connected() bool {
	return m.stream.IsConnected()
}
