package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	r, err := Load(nil)
	require.NoError(t, err)

	av, ok := r.Get(AlphaVantage)
	require.True(t, ok)
	assert.Equal(t, "Alpha Vantage", av.Name)
	assert.False(t, av.Trading)
	assert.Equal(t, 5, av.Quota.PerMinute)
	assert.Equal(t, 25, av.Quota.PerDay)
	assert.True(t, av.HasEndpoint("RSI"))
	assert.True(t, av.HasEndpoint("TIME_SERIES_DAILY"))
	assert.False(t, av.HasEndpoint("orders"))

	alpaca, ok := r.Get(Alpaca)
	require.True(t, ok)
	assert.Equal(t, KindTrading, alpaca.Kind())

	_, ok = r.Get(Finnhub)
	assert.True(t, ok)

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistry_List(t *testing.T) {
	r, err := Load(nil)
	require.NoError(t, err)

	all := r.List(KindAll)
	trading := r.List(KindTrading)
	data := r.List(KindData)

	assert.Len(t, all, len(trading)+len(data))
	assert.NotEmpty(t, trading)
	for _, p := range trading {
		assert.True(t, p.Trading, p.ID)
	}
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
	assert.Equal(t, len(all), len(r.IDs()))
}

func TestLoad_QuotaOverride(t *testing.T) {
	r, err := Load(map[string]Quota{AlphaVantage: {PerMinute: 75, PerDay: 0}})
	require.NoError(t, err)

	av, _ := r.Get(AlphaVantage)
	assert.Equal(t, 75, av.Quota.PerMinute)
	assert.Equal(t, 0, av.Quota.PerDay)

	// List reflects the override as well
	for _, p := range r.List(KindData) {
		if p.ID == AlphaVantage {
			assert.Equal(t, 75, p.Quota.PerMinute)
		}
	}

	_, err = Load(map[string]Quota{"unknown": {PerMinute: 1}})
	assert.Error(t, err)

	_, err = Load(map[string]Quota{AlphaVantage: {PerMinute: -1}})
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown field",
			yaml: `
providers:
  - id: x
    name: X
    auth_type: none
    base_url: https://x.example
    colour: red
    endpoints: [{id: a}]
`,
		},
		{
			name: "bad auth type",
			yaml: `
providers:
  - id: x
    name: X
    auth_type: magic
    base_url: https://x.example
    endpoints: [{id: a}]
`,
		},
		{
			name: "no endpoints",
			yaml: `
providers:
  - id: x
    name: X
    auth_type: none
    base_url: https://x.example
`,
		},
		{
			name: "duplicate id",
			yaml: `
providers:
  - {id: x, name: X, auth_type: none, base_url: "https://x.example", endpoints: [{id: a}]}
  - {id: x, name: Y, auth_type: none, base_url: "https://y.example", endpoints: [{id: a}]}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("trading")
	require.NoError(t, err)
	assert.Equal(t, KindTrading, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAll, k)

	_, err = ParseKind("crypto")
	assert.Error(t, err)
}
