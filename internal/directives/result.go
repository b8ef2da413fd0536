package directives

import (
	"fmt"
	"strings"

	"github.com/wonny/tradepulse/internal/contracts"
)

// Failure markers carried in debug["failure"]
const (
	FailureMissingInput = "missing_input"
	FailureFetchError   = "fetch_error"
	FailureStaleInput   = "stale_input"
	FailureTooFewPoints = "insufficient_observations"
	FailureNoChildren   = "no_participating_children"
)

// tally accumulates bonuses around the neutral base. Clamping happens once, in result.
type tally struct {
	score   float64
	signals []string
	debug   map[string]interface{}
}

func newTally() *tally {
	return &tally{score: contracts.NeutralScore, debug: map[string]interface{}{}}
}

func (t *tally) add(points float64, signal string) {
	t.score += points
	if signal != "" {
		t.signals = append(t.signals, signal)
	}
}

func (t *tally) note(key string, v interface{}) {
	t.debug[key] = v
}

func (t *tally) signal() string {
	if len(t.signals) == 0 {
		return "Neutral"
	}
	return strings.Join(t.signals, ", ")
}

// result clamps the summed score to 0-100 and rescales it to max
func (t *tally) result(d Directive, scale Scale, notes []string) contracts.DirectiveResult {
	raw := clamp(t.score, 0, 100)
	t.debug["raw_score"] = round(t.score)
	if len(notes) > 0 {
		t.debug["param_errors"] = notes
	}
	ceiling := scale.Max()
	return contracts.DirectiveResult{
		Directive: d.ID(),
		Name:      d.Name(),
		Score:     clamp(round(raw*ceiling/100), 0, ceiling),
		MaxScore:  ceiling,
		Signal:    t.signal(),
		Status:    contracts.StatusOK,
		Debug:     t.debug,
	}
}

// neutral builds a non-ok result with the neutral score and a failure marker
func neutral(d Directive, scale Scale, status contracts.Status, failure, reason string) contracts.DirectiveResult {
	ceiling := scale.Max()
	signal := "No Data"
	switch status {
	case contracts.StatusInsufficientData:
		signal = "Insufficient Data"
	case contracts.StatusStale:
		signal = "Stale Data"
	case contracts.StatusUnavailable:
		signal = "Unavailable"
	}
	return contracts.DirectiveResult{
		Directive: d.ID(),
		Name:      d.Name(),
		Score:     contracts.NeutralScore * ceiling / 100,
		MaxScore:  ceiling,
		Signal:    signal + ": " + reason,
		Status:    status,
		Reason:    reason,
		Debug:     map[string]interface{}{contracts.DebugFailure: failure},
	}
}

// unusable reports why an input cannot be used, or nil when it can
func unusable(d Directive, scale Scale, data *SymbolData, in Input) *contracts.DirectiveResult {
	key := in.Key()
	if data.Stale[key] {
		r := neutral(d, scale, contracts.StatusStale, FailureStaleInput, fmt.Sprintf("%s is older than its freshness requirement", describe(in)))
		return &r
	}
	if reason, failed := data.Failures[key]; failed {
		r := neutral(d, scale, contracts.StatusNoData, FailureFetchError, fmt.Sprintf("%s unavailable: %s", describe(in), reason))
		r.Debug["input"] = key
		return &r
	}
	return nil
}

func missing(d Directive, scale Scale, in Input) *contracts.DirectiveResult {
	r := neutral(d, scale, contracts.StatusNoData, FailureMissingInput, describe(in)+" not provided")
	r.Debug["input"] = in.Key()
	return &r
}

func describe(in Input) string {
	switch in.Kind {
	case InputIndicator:
		return in.Indicator
	case InputBars:
		return "price history"
	default:
		return "current price"
	}
}

// needIndicator returns the reading or the result to return instead
func needIndicator(d Directive, scale Scale, data *SymbolData, in Input, fields ...string) (contracts.IndicatorReading, *contracts.DirectiveResult) {
	if r := unusable(d, scale, data, in); r != nil {
		return contracts.IndicatorReading{}, r
	}
	reading, ok := data.Indicators[in.Key()]
	if !ok {
		return reading, missing(d, scale, in)
	}
	for _, f := range fields {
		if _, ok := reading.Values[f]; !ok {
			r := neutral(d, scale, contracts.StatusNoData, FailureMissingInput, fmt.Sprintf("%s reading has no %s", in.Indicator, f))
			return reading, &r
		}
	}
	return reading, nil
}

// needBars returns at least n bars or the result to return instead
func needBars(d Directive, scale Scale, data *SymbolData, in Input, n int) ([]contracts.Bar, *contracts.DirectiveResult) {
	if r := unusable(d, scale, data, in); r != nil {
		return nil, r
	}
	if len(data.Bars) == 0 {
		return nil, missing(d, scale, in)
	}
	if len(data.Bars) < n {
		r := neutral(d, scale, contracts.StatusInsufficientData, FailureTooFewPoints,
			fmt.Sprintf("need %d daily bars, have %d", n, len(data.Bars)))
		return nil, &r
	}
	return data.Bars, nil
}

// needPrice returns the current quote price or the result to return instead
func needPrice(d Directive, scale Scale, data *SymbolData) (float64, *contracts.DirectiveResult) {
	in := quoteInput()
	if data.Quote != nil && data.Quote.Price > 0 && !data.Stale[in.Key()] {
		return data.Quote.Price, nil
	}
	if r := unusable(d, scale, data, in); r != nil {
		return 0, r
	}
	return 0, missing(d, scale, in)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func nonNegative(vs ...*float64) {
	for _, v := range vs {
		if *v < 0 {
			*v = 0
		}
	}
}

// ordered forces mild <= strong so a deeper zone never earns less than a shallower one
func ordered(mild, strong *float64) {
	nonNegative(mild, strong)
	if *mild > *strong {
		*mild = *strong
	}
}
