package directives

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/tradepulse/internal/contracts"
)

// Weighted is one (child, weight) row of a composite table
type Weighted struct {
	Directive string  `yaml:"directive" json:"directive"`
	Weight    float64 `yaml:"weight" json:"weight"`
}

// Composite aggregates base directives by weight. Non-ok children are skipped
// and the remaining weights renormalized.
// ⭐ SSOT: 컴포지트는 자식 디렉티브 점수의 가중 평균만 계산
type Composite struct {
	id    string
	name  string
	table []Weighted
	reg   *Registry
}

func (c *Composite) ID() string   { return c.id }
func (c *Composite) Name() string { return c.name }

// Table returns a copy of the (child, weight) rows
func (c *Composite) Table() []Weighted {
	return append([]Weighted(nil), c.table...)
}

// Defaults maps each child to its weight. Passing a number for a child id overrides that weight.
func (c *Composite) Defaults() Params {
	out := Params{"max_score": 100.0}
	for _, w := range c.table {
		out[w.Directive] = w.Weight
	}
	return out
}

func (c *Composite) MaxScore(params Params) float64 {
	s, _ := bind[Scale](params)
	return s.Max()
}

// weights applies per-child overrides. Negative or non-numeric overrides keep the table weight.
func (c *Composite) weights(params Params) ([]Weighted, []string) {
	out := c.Table()
	var notes []string
	for i, w := range out {
		raw, ok := params[w.Directive]
		if !ok {
			continue
		}
		v, ok := toFloat(raw)
		if !ok || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			notes = append(notes, fmt.Sprintf("weight for %s: invalid value %v", w.Directive, raw))
			continue
		}
		out[i].Weight = v
	}
	return out, notes
}

// Inputs is the union of the children's inputs under their registry params
func (c *Composite) Inputs(params Params) []Input {
	weights, _ := c.weights(params)
	byKey := map[string]Input{}
	var order []string
	for _, w := range weights {
		d, ok := c.reg.Get(w.Directive)
		if !ok || c.reg.IsComposite(w.Directive) || w.Weight == 0 {
			continue
		}
		for _, in := range d.Inputs(c.reg.Params(w.Directive)) {
			key := in.Key()
			prev, seen := byKey[key]
			if !seen {
				order = append(order, key)
				byKey[key] = in
				continue
			}
			if in.Lookback > prev.Lookback {
				byKey[key] = in
			}
		}
	}
	out := make([]Input, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func (c *Composite) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	scale, notes := bind[Scale](params)
	weights, wnotes := c.weights(params)
	notes = append(notes, wnotes...)

	agg := &contracts.CompositeResult{Composite: c.id, Signals: []string{}}
	var weighted, participating float64
	for _, w := range weights {
		child := contracts.ChildResult{Directive: w.Directive, Weight: w.Weight}
		d, ok := c.reg.Get(w.Directive)
		switch {
		case !ok:
			child.Reason = "directive not registered"
		case c.reg.IsComposite(w.Directive):
			child.Reason = "nested composites are not supported"
		case w.Weight == 0:
			child.Reason = "zero weight"
		}
		if child.Reason != "" {
			agg.Children = append(agg.Children, child)
			continue
		}

		r := d.CalculateScore(data, c.reg.Params(w.Directive))
		child.Score = round(r.Normalized())
		child.Status = r.Status
		child.Signal = r.Signal
		if !r.OK() {
			child.Reason = r.Reason
			agg.Children = append(agg.Children, child)
			continue
		}

		child.Included = true
		weighted += w.Weight * r.Normalized()
		participating += w.Weight
		if n := r.Normalized(); n > 60 || n < 40 {
			agg.Signals = append(agg.Signals, d.Name()+": "+r.Signal)
		}
		agg.Children = append(agg.Children, child)
	}
	agg.ParticipatingWeight = round(participating)

	if participating <= 0 {
		res := neutral(c, *scale, contracts.StatusNoData, FailureNoChildren, "no child directive produced a usable score")
		agg.Score = contracts.NeutralScore
		res.Composite = agg
		return res
	}

	score := clamp(weighted/participating, 0, 100)
	agg.Score = round(score)

	debug := map[string]interface{}{
		"participating_weight": agg.ParticipatingWeight,
		"children":             len(weights),
	}
	if len(notes) > 0 {
		debug["param_errors"] = notes
	}
	ceiling := scale.Max()
	return contracts.DirectiveResult{
		Directive: c.id,
		Name:      c.name,
		Score:     clamp(round(score*ceiling/100), 0, ceiling),
		MaxScore:  ceiling,
		Signal:    compositeLabel(score),
		Status:    contracts.StatusOK,
		Debug:     debug,
		Composite: agg,
	}
}

func (c *Composite) Explain(params Params) string {
	weights, _ := c.weights(params)
	parts := make([]string, 0, len(weights))
	for _, w := range weights {
		parts = append(parts, fmt.Sprintf("%s × %.2f", w.Directive, w.Weight))
	}
	return fmt.Sprintf("Weighted average of %s, each child normalized to 0-100. "+
		"Children without usable data are skipped and the remaining weights renormalized; "+
		"with no participating child the score is 50.", strings.Join(parts, ", "))
}

func compositeLabel(score float64) string {
	switch {
	case score >= 70:
		return "Strong Bullish"
	case score >= 60:
		return "Bullish"
	case score <= 30:
		return "Strong Bearish"
	case score <= 40:
		return "Bearish"
	}
	return "Neutral"
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// defaultTables are the built-in composite definitions
func defaultTables() map[string][]Weighted {
	return map[string][]Weighted{
		"basic_weekly_rhythm": {
			{"monday_effect", 0.3},
			{"midweek_momentum", 0.4},
			{"volume_rhythm", 0.3},
		},
		"advanced_weekly_rhythm": {
			{"monday_effect", 0.2},
			{"midweek_momentum", 0.25},
			{"friday_positioning", 0.2},
			{"volume_rhythm", 0.2},
			{"institutional_timing", 0.15},
		},
		"technical_momentum": {
			{"rsi", 0.25},
			{"macd", 0.25},
			{"stochastic", 0.2},
			{"momentum", 0.15},
			{"cci", 0.15},
		},
		"trend_strength": {
			{"adx", 0.3},
			{"moving_average_crossover", 0.25},
			{"ema", 0.25},
			{"obv", 0.2},
		},
	}
}

var compositeNames = map[string]string{
	"basic_weekly_rhythm":    "Basic Weekly Rhythm",
	"advanced_weekly_rhythm": "Advanced Weekly Rhythm",
	"technical_momentum":     "Technical Momentum",
	"trend_strength":         "Trend Strength",
}

// titleCase turns snake_case into a display name for profile-defined composites
func titleCase(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func sortedTableIDs(tables map[string][]Weighted) []string {
	ids := make([]string, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
