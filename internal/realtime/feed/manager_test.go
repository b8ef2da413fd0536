package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/external/finnhub"
	"github.com/wonny/tradepulse/internal/realtime/cache"
	"github.com/wonny/tradepulse/pkg/logger"
)

type fakeStream struct {
	trades  []finnhub.Trade
	onTrade func(finnhub.Trade)
	err     error
}

func (s *fakeStream) OnTrade(fn func(finnhub.Trade)) { s.onTrade = fn }
func (s *fakeStream) IsConnected() bool              { return true }

func (s *fakeStream) Run(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	for _, t := range s.trades {
		s.onTrade(t)
	}
	<-ctx.Done()
	return nil
}

func TestFeedManager(t *testing.T) {
	now := time.Now()
	stream := &fakeStream{trades: []finnhub.Trade{
		{Symbol: "AAPL", Price: 190.5, Volume: 10, Time: now},
		{Symbol: "MSFT", Price: 410, Volume: 5, Time: now},
	}}
	prices := cache.NewPriceCache(time.Minute, logger.Nop(), nil)
	m := NewFeedManager(stream, prices, logger.Nop())

	m.Start(context.Background())
	require.Eventually(t, func() bool { return prices.Len() == 2 }, time.Second, 10*time.Millisecond)
	m.Stop()

	price, _, ok := prices.Latest("AAPL")
	require.True(t, ok)
	assert.Equal(t, 190.5, price)
	assert.True(t, m.Connected())
}

func TestFeedManager_NoKey(t *testing.T) {
	stream := &fakeStream{err: finnhub.ErrNoAPIKey}
	m := NewFeedManager(stream, cache.NewPriceCache(time.Minute, logger.Nop(), nil), logger.Nop())

	m.Start(context.Background())
	m.Stop()
}
