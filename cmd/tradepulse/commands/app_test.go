package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/providers"
	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/kvstore"
	"github.com/wonny/tradepulse/pkg/logger"
)

func TestLoadProviders_QuotaOverride(t *testing.T) {
	catalog, err := providers.Load(nil)
	require.NoError(t, err)
	base, _ := catalog.Get(providers.AlphaVantage)

	cfg := &config.Config{AlphaVantage: config.AlphaVantageConfig{QuotaPerMinute: 75}}
	reg, err := loadProviders(cfg)
	require.NoError(t, err)

	av, ok := reg.Get(providers.AlphaVantage)
	require.True(t, ok)
	assert.Equal(t, 75, av.Quota.PerMinute)
	assert.Equal(t, base.Quota.PerDay, av.Quota.PerDay)

	reg, err = loadProviders(&config.Config{})
	require.NoError(t, err)
	av, _ = reg.Get(providers.AlphaVantage)
	assert.Equal(t, base.Quota, av.Quota)
}

func TestOpenStore_DefaultsToMemory(t *testing.T) {
	store, err := openStore(context.Background(), &config.Config{StoreBackend: config.StoreMemory}, logger.Nop())
	require.NoError(t, err)
	_, ok := store.(*kvstore.Memory)
	assert.True(t, ok)
}

func TestQuotaText(t *testing.T) {
	assert.Equal(t, "∞", quotaText(0))
	assert.Equal(t, "25", quotaText(25))
	assert.Equal(t, "∞", remainingText(-1))
	assert.Equal(t, "0", remainingText(0))
}
