package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/tradepulse/internal/directives"
)

// Load reads YAML file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read strategy profile: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates a profile
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode strategy profile: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is the profile used when STRATEGY_CONFIG is unset: built-in params and tables
func Default() *Config {
	return &Config{
		Meta: Meta{StrategyID: "default", Version: "builtin"},
		Scoring: Scoring{
			DefaultDirectives: []string{"technical_momentum", "trend_strength", "basic_weekly_rhythm"},
		},
	}
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: encoding/json은 map 키를 정렬하므로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot creates the audit record attached to score reports
func NewSnapshot(cfg *Config) (*Snapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ConfigHash: hash,
		StrategyID: cfg.Meta.StrategyID,
		Version:    cfg.Meta.Version,
		LoadedAt:   time.Now(),
	}, nil
}

// StrictFreshness resolves the strict flag: profile first, then the environment default
func (c *Config) StrictFreshness(envDefault bool) bool {
	if c.Freshness.Strict != nil {
		return *c.Freshness.Strict
	}
	return envDefault
}

// RegistryOptions applies the profile to a directive registry
// ⭐ SSOT: 프로필 → 레지스트리 변환은 여기서만
func (c *Config) RegistryOptions() []directives.Option {
	params := make(map[string]directives.Params, len(c.Directives))
	for id, d := range c.Directives {
		if len(d.Params) > 0 {
			params[id] = directives.Params(d.Params)
		}
	}

	opts := []directives.Option{directives.WithParams(params)}
	for id, comp := range c.Composites {
		table := make([]directives.Weighted, 0, len(comp.Children))
		for _, ch := range comp.Children {
			table = append(table, directives.Weighted{Directive: ch.Directive, Weight: ch.Weight})
		}
		opts = append(opts, directives.WithCompositeTable(id, table))
	}
	return opts
}
