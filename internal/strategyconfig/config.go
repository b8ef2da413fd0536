package strategyconfig

import "time"

// Config는 스코어링 전략 프로필 (디렉티브 파라미터 + 컴포지트 가중치)
type Config struct {
	Meta       Meta                       `yaml:"meta" json:"meta"`
	Freshness  Freshness                  `yaml:"freshness" json:"freshness"`
	Scoring    Scoring                    `yaml:"scoring" json:"scoring"`
	Directives map[string]DirectiveConfig `yaml:"directives" json:"directives" validate:"dive"`
	Composites map[string]CompositeConfig `yaml:"composites" json:"composites" validate:"dive"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID  string `yaml:"strategy_id" json:"strategy_id" validate:"required"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Freshness 데이터 신선도 정책
type Freshness struct {
	// Strict overrides FRESHNESS_STRICT when set
	Strict *bool `yaml:"strict,omitempty" json:"strict,omitempty"`
}

// Scoring 기본 스코어링 대상
type Scoring struct {
	// DefaultDirectives is used when a request names no directives
	DefaultDirectives []string `yaml:"default_directives" json:"default_directives" validate:"dive,required"`
	// Watchlist symbols are scored on a schedule to keep the cache warm
	Watchlist []string `yaml:"watchlist" json:"watchlist" validate:"dive,required,max=12"`
	// WatchlistSchedule is a cron spec, empty disables the job
	WatchlistSchedule string `yaml:"watchlist_schedule,omitempty" json:"watchlist_schedule,omitempty"`
}

// DirectiveConfig 디렉티브별 파라미터 (flat map, 잘못된 값은 기본값으로 대체)
type DirectiveConfig struct {
	Params map[string]interface{} `yaml:"params" json:"params"`
}

// CompositeConfig 컴포지트 자식 테이블
type CompositeConfig struct {
	Children []Child `yaml:"children" json:"children" validate:"required,min=1,dive"`
}

// Child 컴포지트 구성 요소
type Child struct {
	Directive string  `yaml:"directive" json:"directive" validate:"required"`
	Weight    float64 `yaml:"weight" json:"weight" validate:"gte=0,lte=1"`
}

// Snapshot ties a score report to the exact profile it was computed with
type Snapshot struct {
	ConfigHash string    `json:"config_hash"`
	StrategyID string    `json:"strategy_id"`
	Version    string    `json:"version"`
	LoadedAt   time.Time `json:"loaded_at"`
}
