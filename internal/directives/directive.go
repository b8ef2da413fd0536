// Package directives holds the scoring directives: pure functions from market
// data and a flat parameter map to a bounded score with a signal label.
package directives

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/wonny/tradepulse/internal/contracts"
)

// Params is a flat map of named numeric or boolean parameters.
// Absent or malformed keys always fall back to the directive's defaults.
type Params map[string]interface{}

// Directive is an independently pluggable scorer
// ⭐ SSOT: 모든 스코어링 디렉티브는 이 인터페이스를 구현
type Directive interface {
	ID() string
	Name() string
	// Inputs lists the data the directive reads for the given params
	Inputs(params Params) []Input
	// CalculateScore never fails: missing data yields a tagged neutral result
	CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult
	// MaxScore is the ceiling of the score for params, computable without market data
	MaxScore(params Params) float64
	Explain(params Params) string
	Defaults() Params
}

// InputKind classifies a directive input
type InputKind string

const (
	InputQuote     InputKind = "quote"
	InputBars      InputKind = "bars"
	InputIndicator InputKind = "indicator"
)

// Input is one piece of data a directive needs
type Input struct {
	Kind      InputKind
	Indicator string            // for InputIndicator
	Params    map[string]string // indicator request params
	Lookback  int               // for InputBars, number of daily bars
}

// Key identifies the input inside SymbolData. All bar inputs share one key;
// the engine fetches the longest lookback requested.
func (in Input) Key() string {
	switch in.Kind {
	case InputIndicator:
		v := url.Values{}
		for k, val := range in.Params {
			v.Set(k, val)
		}
		return "indicator:" + in.Indicator + ":" + v.Encode()
	default:
		return string(in.Kind)
	}
}

func indicatorInput(name string, params map[string]string) Input {
	return Input{Kind: InputIndicator, Indicator: name, Params: params}
}

func barsInput(lookback int) Input {
	return Input{Kind: InputBars, Lookback: lookback}
}

func quoteInput() Input {
	return Input{Kind: InputQuote}
}

// SymbolData is everything fetched for one symbol in one scoring pass
type SymbolData struct {
	Symbol     string
	Now        time.Time
	Quote      *contracts.Quote
	Bars       []contracts.Bar // oldest first
	Indicators map[string]contracts.IndicatorReading

	// Failures maps input keys to the reason they could not be fetched
	Failures map[string]string
	// Stale marks inputs rejected by strict freshness validation
	Stale map[string]bool
}

// NewSymbolData returns an empty bag for symbol
func NewSymbolData(symbol string, now time.Time) *SymbolData {
	return &SymbolData{
		Symbol:     symbol,
		Now:        now,
		Indicators: make(map[string]contracts.IndicatorReading),
		Failures:   make(map[string]string),
		Stale:      make(map[string]bool),
	}
}

// Scale is embedded in every parameter set: the directive's declared maximum
type Scale struct {
	MaxScore float64 `yaml:"max_score" default:"100"`
}

// Max returns the validated maximum
func (s Scale) Max() float64 {
	if math.IsNaN(s.MaxScore) || math.IsInf(s.MaxScore, 0) || s.MaxScore <= 0 {
		return 100
	}
	return s.MaxScore
}

// resetScale replaces an unusable max_score with the default and describes why
func (s *Scale) resetScale() string {
	if s.Max() == s.MaxScore {
		return ""
	}
	bad := s.MaxScore
	s.MaxScore = 100
	return fmt.Sprintf("max_score %v is not a positive finite number, using 100", bad)
}

// bind overlays params onto a defaults-initialised P. Keys that cannot be decoded
// keep their default and are reported in the returned notes.
func bind[P any](params Params) (*P, []string) {
	p := new(P)
	if err := defaults.Set(p); err != nil {
		// Only reachable with a broken default tag
		panic(fmt.Sprintf("directives: bad defaults for %T: %v", p, err))
	}
	if len(params) == 0 {
		return p, nil
	}

	raw, err := yaml.Marshal(coerce(params))
	if err != nil {
		return p, []string{err.Error()}
	}

	var notes []string
	if err := yaml.Unmarshal(raw, p); err != nil {
		// yaml.v3 keeps decoding past type errors, leaving bad fields untouched
		if te, ok := err.(*yaml.TypeError); ok {
			notes = append(notes, te.Errors...)
		} else {
			fresh := new(P)
			_ = defaults.Set(fresh)
			return fresh, []string{err.Error()}
		}
	}
	if sc, ok := any(p).(interface{ resetScale() string }); ok {
		if note := sc.resetScale(); note != "" {
			notes = append(notes, note)
		}
	}
	return p, notes
}

// coerce turns string values from query strings into numbers or booleans
func coerce(params Params) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(s); err == nil {
			out[k] = b
		} else {
			out[k] = s
		}
	}
	return out
}

// defaultsOf renders P's defaults as a flat Params map
func defaultsOf[P any]() Params {
	p := new(P)
	if err := defaults.Set(p); err != nil {
		panic(fmt.Sprintf("directives: bad defaults for %T: %v", p, err))
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("directives: marshal defaults for %T: %v", p, err))
	}
	out := Params{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("directives: unmarshal defaults for %T: %v", p, err))
	}
	return out
}

// SortedKeys returns params keys in order, for deterministic output
func SortedKeys(p Params) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
