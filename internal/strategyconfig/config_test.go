package strategyconfig

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/directives"
)

func TestLoad(t *testing.T) {
	// 테스트용 YAML 경로
	path := "../../config/strategy/default.yaml"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)

	assert.Equal(t, "us_equity_swing", cfg.Meta.StrategyID)
	assert.Equal(t, 14, cfg.Directives["rsi"].Params["period"])
	assert.Len(t, cfg.Composites["mean_reversion"].Children, 3)
	assert.False(t, cfg.StrictFreshness(true))

	// 해시 생성
	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	// 동일 설정 → 동일 해시
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2)

	warnings := Warn(cfg)
	require.Len(t, warnings, 1)
	assert.Equal(t, "WATCHLIST_QUOTA", warnings[0].Code)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("meta:\n  strategy_id: x\n  strategy: typo\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing strategy id",
			yaml:  "meta:\n  version: v1\n",
			field: "Config.Meta.StrategyID",
		},
		{
			name:  "unknown directive params",
			yaml:  "meta: {strategy_id: x}\ndirectives:\n  rsx:\n    params: {period: 3}\n",
			field: "directives.rsx",
		},
		{
			name: "weights do not sum to one",
			yaml: `meta: {strategy_id: x}
composites:
  mix:
    children:
      - {directive: rsi, weight: 0.5}
      - {directive: macd, weight: 0.4}
`,
			field: "composites.mix.children",
		},
		{
			name: "nested composite child",
			yaml: `meta: {strategy_id: x}
composites:
  mix:
    children:
      - {directive: trend_strength, weight: 1}
`,
			field: "composites.mix.children[0]",
		},
		{
			name: "composite shadows base directive",
			yaml: `meta: {strategy_id: x}
composites:
  rsi:
    children:
      - {directive: macd, weight: 1}
`,
			field: "composites.rsi",
		},
		{
			name:  "unknown default directive",
			yaml:  "meta: {strategy_id: x}\nscoring:\n  default_directives: [nope]\n",
			field: "scoring.default_directives[0]",
		},
		{
			name:  "bad schedule",
			yaml:  "meta: {strategy_id: x}\nscoring:\n  watchlist_schedule: every day\n",
			field: "scoring.watchlist_schedule",
		},
		{
			name:  "infinite max score",
			yaml:  "meta: {strategy_id: x}\ndirectives:\n  rsi:\n    params: {max_score: .inf}\n",
			field: "directives.rsi.params.max_score",
		},
		{
			name:  "nan param",
			yaml:  "meta: {strategy_id: x}\ndirectives:\n  cci:\n    params: {oversold: .nan}\n",
			field: "directives.cci.params.oversold",
		},
		{
			name:  "weight out of range",
			yaml:  "meta: {strategy_id: x}\ncomposites:\n  mix:\n    children:\n      - {directive: rsi, weight: 1.5}\n",
			field: "Config.Composites[mix].Children[0].Weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var verr ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegistryOptions(t *testing.T) {
	cfg, err := Parse([]byte(`meta: {strategy_id: x}
directives:
  rsi:
    params: {period: 21}
composites:
  pair:
    children:
      - {directive: rsi, weight: 0.5}
      - {directive: cci, weight: 0.5}
`))
	require.NoError(t, err)

	reg := directives.NewRegistry(cfg.RegistryOptions()...)
	assert.True(t, reg.IsComposite("pair"))
	assert.Equal(t, 21, reg.Params("rsi")["period"])

	c, ok := reg.Composite("pair")
	require.True(t, ok)
	assert.Equal(t, []directives.Weighted{{Directive: "rsi", Weight: 0.5}, {Directive: "cci", Weight: 0.5}}, c.Table())
}

func TestWarn(t *testing.T) {
	strict := true
	cfg := &Config{
		Meta:      Meta{StrategyID: "x"},
		Freshness: Freshness{Strict: &strict},
		Directives: map[string]DirectiveConfig{
			"rsi": {Params: map[string]interface{}{"perod": 10}},
		},
	}

	codes := map[string]bool{}
	for _, w := range Warn(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["UNKNOWN_PARAM"])
	assert.True(t, codes["STRICT_FRESHNESS"])
	assert.True(t, cfg.StrictFreshness(false))
}

func TestHash_ChangesWithParams(t *testing.T) {
	a := Default()
	b := Default()
	b.Directives = map[string]DirectiveConfig{"rsi": {Params: map[string]interface{}{"period": 9}}}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	snap, err := NewSnapshot(a)
	require.NoError(t, err)
	assert.Equal(t, ha, snap.ConfigHash)
	assert.Equal(t, "default", snap.StrategyID)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}
