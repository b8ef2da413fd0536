package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/wonny/tradepulse/internal/directives"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var validate = validator.New()

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ValidationError{fe.Namespace(), fmt.Sprintf("failed %q (%v)", fe.Tag(), fe.Value())}
		}
		return err
	}

	builtin := directives.NewRegistry()

	// === Directives ===
	for _, id := range sortedKeys(cfg.Directives) {
		if _, ok := builtin.Get(id); !ok {
			if _, custom := cfg.Composites[id]; !custom {
				return ValidationError{"directives." + id, "unknown directive"}
			}
		}
		params := cfg.Directives[id].Params
		for _, key := range directives.SortedKeys(params) {
			if f, ok := params[key].(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				return ValidationError{"directives." + id + ".params." + key, "must be a finite number"}
			}
		}
	}

	// === Composites ===
	for _, id := range sortedKeys(cfg.Composites) {
		if d, ok := builtin.Get(id); ok && !builtin.IsComposite(d.ID()) {
			return ValidationError{"composites." + id, "conflicts with a base directive"}
		}
		comp := cfg.Composites[id]
		weights := make([]float64, 0, len(comp.Children))
		seen := map[string]bool{}
		for i, ch := range comp.Children {
			field := fmt.Sprintf("composites.%s.children[%d]", id, i)
			if _, ok := builtin.Get(ch.Directive); !ok || builtin.IsComposite(ch.Directive) {
				return ValidationError{field, fmt.Sprintf("%q is not a base directive", ch.Directive)}
			}
			if seen[ch.Directive] {
				return ValidationError{field, fmt.Sprintf("%q listed twice", ch.Directive)}
			}
			seen[ch.Directive] = true
			weights = append(weights, ch.Weight)
		}
		if err := validateWeightsSum(weights, 1.0, 1e-6); err != nil {
			return ValidationError{"composites." + id + ".children", err.Error()}
		}
	}

	// === Scoring ===
	for i, id := range cfg.Scoring.DefaultDirectives {
		if _, ok := builtin.Get(id); ok {
			continue
		}
		if _, custom := cfg.Composites[id]; custom {
			continue
		}
		return ValidationError{fmt.Sprintf("scoring.default_directives[%d]", i), fmt.Sprintf("unknown directive %q", id)}
	}
	if spec := cfg.Scoring.WatchlistSchedule; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return ValidationError{"scoring.watchlist_schedule", err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning
	builtin := directives.NewRegistry()

	// 파라미터 오타: 기본값에 없는 키는 무시됨
	for _, id := range sortedKeys(cfg.Directives) {
		d, ok := builtin.Get(id)
		if !ok {
			continue
		}
		known := d.Defaults()
		for _, key := range directives.SortedKeys(cfg.Directives[id].Params) {
			if _, ok := known[key]; !ok {
				warnings = append(warnings, Warning{
					Code:    "UNKNOWN_PARAM",
					Message: fmt.Sprintf("directives.%s.params.%s is not a parameter of %s and is ignored", id, key, id),
				})
			}
		}
	}

	if len(cfg.Scoring.Watchlist) > 0 && cfg.Scoring.WatchlistSchedule != "" {
		warnings = append(warnings, Warning{
			Code:    "WATCHLIST_QUOTA",
			Message: "scheduled watchlist scoring consumes provider quota; keep the list short on free tiers",
		})
	}

	if cfg.Freshness.Strict != nil && *cfg.Freshness.Strict {
		warnings = append(warnings, Warning{
			Code:    "STRICT_FRESHNESS",
			Message: "strict freshness turns stale inputs into neutral stale results",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
