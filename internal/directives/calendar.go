package directives

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/tradepulse/internal/contracts"
)

// observation is one daily return with the volume and date of the closing bar
type observation struct {
	date   time.Time
	ret    float64 // percent
	volume float64
}

// observations returns up to lookback daily returns, oldest first
func observations(bars []contracts.Bar, lookback int) []observation {
	if len(bars) > lookback+1 {
		bars = bars[len(bars)-lookback-1:]
	}
	out := make([]observation, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		r, ok := bars[i].Return(bars[i-1])
		if !ok {
			continue
		}
		out = append(out, observation{date: bars[i].Date, ret: r * 100, volume: bars[i].Volume})
	}
	return out
}

// split partitions observations and returns the mean of f over each side
type split struct {
	in, out   float64
	inN, outN int
}

func partition(obs []observation, member func(observation) bool, f func(observation) float64) split {
	var s split
	for _, o := range obs {
		if member(o) {
			s.in += f(o)
			s.inN++
		} else {
			s.out += f(o)
			s.outN++
		}
	}
	if s.inN > 0 {
		s.in /= float64(s.inN)
	}
	if s.outN > 0 {
		s.out /= float64(s.outN)
	}
	return s
}

func (s split) enough(n int) bool {
	return s.inN >= n && s.outN >= n
}

func tooFew(d Directive, scale Scale, s split, n int, what string) contracts.DirectiveResult {
	r := neutral(d, scale, contracts.StatusInsufficientData, FailureTooFewPoints,
		fmt.Sprintf("need %d %s and %d other sessions, have %d and %d", n, what, n, s.inN, s.outN))
	r.Debug["observations"] = s.inN
	r.Debug["complement_observations"] = s.outN
	return r
}

func returnOf(o observation) float64 { return o.ret }
func volumeOf(o observation) float64 { return o.volume }

// ---------------------------------------------------------------- weekday return effects

type calendarParams struct {
	Scale           `yaml:",inline"`
	Lookback        int     `yaml:"lookback" default:"120"`
	MinObservations int     `yaml:"min_observations" default:"5"`
	MildDiff        float64 `yaml:"mild_diff" default:"0.15"` // percent
	StrongDiff      float64 `yaml:"strong_diff" default:"0.5"`
	MildBonus       float64 `yaml:"mild_bonus" default:"10"`
	StrongBonus     float64 `yaml:"strong_bonus" default:"25"`
}

func (p *calendarParams) normalize() {
	ordered(&p.MildDiff, &p.StrongDiff)
	ordered(&p.MildBonus, &p.StrongBonus)
	p.Lookback = period(p.Lookback, 120)
	p.MinObservations = period(p.MinObservations, 5)
}

// diffLadder maps a partition-minus-complement difference onto the bonus ladder
func diffLadder(t *tally, diff, mild, strong, mildBonus, strongBonus float64, label string) {
	dir, word := 1.0, "Strength"
	if diff < 0 {
		dir, word = -1, "Weakness"
	}
	switch mag := math.Abs(diff); {
	case mag >= strong:
		t.add(dir*strongBonus, fmt.Sprintf("Strong %s %s (%+.2f%%)", label, word, diff))
	case mag >= mild:
		t.add(dir*mildBonus, fmt.Sprintf("%s %s (%+.2f%%)", label, word, diff))
	default:
		t.add(0, fmt.Sprintf("No %s Edge (%+.2f%%)", label, diff))
	}
}

// weekdayEffect compares the mean return on a set of weekdays with the other sessions
type weekdayEffect struct {
	id, name, label string
	days            map[time.Weekday]bool
}

// MondayEffect scores the historical Monday return edge
func MondayEffect() Directive {
	return weekdayEffect{id: "monday_effect", name: "Monday Effect", label: "Monday",
		days: map[time.Weekday]bool{time.Monday: true}}
}

// FridayPositioning scores the historical Friday return edge
func FridayPositioning() Directive {
	return weekdayEffect{id: "friday_positioning", name: "Friday Positioning", label: "Friday",
		days: map[time.Weekday]bool{time.Friday: true}}
}

// MidweekMomentum scores Tuesday-Thursday returns against Monday and Friday
func MidweekMomentum() Directive {
	return weekdayEffect{id: "midweek_momentum", name: "Midweek Momentum", label: "Midweek",
		days: map[time.Weekday]bool{time.Tuesday: true, time.Wednesday: true, time.Thursday: true}}
}

func (w weekdayEffect) ID() string     { return w.id }
func (w weekdayEffect) Name() string   { return w.name }
func (weekdayEffect) Defaults() Params { return defaultsOf[calendarParams]() }

func (weekdayEffect) MaxScore(params Params) float64 {
	p, _ := bind[calendarParams](params)
	return p.Max()
}

func (weekdayEffect) Inputs(params Params) []Input {
	p, _ := bind[calendarParams](params)
	return []Input{barsInput(period(p.Lookback, 120) + 1)}
}

func (w weekdayEffect) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[calendarParams](params)
	p.normalize()

	bars, res := needBars(w, p.Scale, data, barsInput(p.Lookback+1), 2)
	if res != nil {
		return *res
	}

	obs := observations(bars, p.Lookback)
	s := partition(obs, func(o observation) bool { return w.days[o.date.Weekday()] }, returnOf)
	if !s.enough(p.MinObservations) {
		return tooFew(w, p.Scale, s, p.MinObservations, w.label+" sessions")
	}

	diff := s.in - s.out
	t := newTally()
	t.note("partition_mean_pct", round(s.in))
	t.note("complement_mean_pct", round(s.out))
	t.note("diff_pct", round(diff))
	t.note("observations", s.inN)
	diffLadder(t, diff, p.MildDiff, p.StrongDiff, p.MildBonus, p.StrongBonus, w.label)
	return t.result(w, p.Scale, notes)
}

func (w weekdayEffect) Explain(params Params) string {
	p, _ := bind[calendarParams](params)
	p.normalize()
	return fmt.Sprintf("Starts at 50. Mean %s return minus the mean of other sessions over %d days; "+
		"a difference of %.4g%%/%.4g%% moves the score %.4g/%.4g in its direction. Fewer than %d sessions on either side scores 50.",
		w.label, p.Lookback, p.MildDiff, p.StrongDiff, p.MildBonus, p.StrongBonus, p.MinObservations)
}

// ---------------------------------------------------------------- Volume rhythm

type volumeRhythmParams struct {
	Scale           `yaml:",inline"`
	Lookback        int     `yaml:"lookback" default:"120"`
	MinObservations int     `yaml:"min_observations" default:"5"`
	MildRatio       float64 `yaml:"mild_ratio" default:"10"` // percent above/below the other days
	StrongRatio     float64 `yaml:"strong_ratio" default:"25"`
	MildBonus       float64 `yaml:"mild_bonus" default:"10"`
	StrongBonus     float64 `yaml:"strong_bonus" default:"20"`
}

// VolumeRhythm scores how heavily the latest session's weekday trades, signed
// by whether that weekday historically closes up or down.
type VolumeRhythm struct{}

func (VolumeRhythm) ID() string       { return "volume_rhythm" }
func (VolumeRhythm) Name() string     { return "Volume Rhythm" }
func (VolumeRhythm) Defaults() Params { return defaultsOf[volumeRhythmParams]() }

func (VolumeRhythm) MaxScore(params Params) float64 {
	p, _ := bind[volumeRhythmParams](params)
	return p.Max()
}

func (VolumeRhythm) Inputs(params Params) []Input {
	p, _ := bind[volumeRhythmParams](params)
	return []Input{barsInput(period(p.Lookback, 120) + 1)}
}

func (d VolumeRhythm) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[volumeRhythmParams](params)
	ordered(&p.MildRatio, &p.StrongRatio)
	ordered(&p.MildBonus, &p.StrongBonus)
	lookback, minObs := period(p.Lookback, 120), period(p.MinObservations, 5)

	bars, res := needBars(d, p.Scale, data, barsInput(lookback+1), 2)
	if res != nil {
		return *res
	}

	day := bars[len(bars)-1].Date.Weekday()
	obs := observations(bars, lookback)
	member := func(o observation) bool { return o.date.Weekday() == day }

	vol := partition(obs, member, volumeOf)
	if !vol.enough(minObs) {
		return tooFew(d, p.Scale, vol, minObs, day.String()+" sessions")
	}
	if vol.out <= 0 {
		return neutral(d, p.Scale, contracts.StatusInsufficientData, FailureTooFewPoints, "no volume on other sessions")
	}
	ret := partition(obs, member, returnOf)

	ratio := (vol.in/vol.out - 1) * 100
	dir := 0.0
	switch {
	case ret.in > ret.out:
		dir = 1
	case ret.in < ret.out:
		dir = -1
	}

	t := newTally()
	t.note("weekday", day.String())
	t.note("volume_ratio_pct", round(ratio))
	t.note("return_diff_pct", round(ret.in-ret.out))

	tone := "Accumulation"
	if dir < 0 {
		tone = "Distribution"
	}
	switch {
	case ratio < p.MildRatio:
		t.add(0, fmt.Sprintf("Ordinary %s Volume", day))
	case dir == 0:
		t.add(0, fmt.Sprintf("Heavy %s Volume, No Return Bias", day))
	case ratio >= p.StrongRatio:
		t.add(dir*p.StrongBonus, fmt.Sprintf("Strong %s %s (%+.0f%% volume)", day, tone, ratio))
	default:
		t.add(dir*p.MildBonus, fmt.Sprintf("%s %s (%+.0f%% volume)", day, tone, ratio))
	}
	return t.result(d, p.Scale, notes)
}

func (VolumeRhythm) Explain(params Params) string {
	p, _ := bind[volumeRhythmParams](params)
	ordered(&p.MildRatio, &p.StrongRatio)
	return fmt.Sprintf("Starts at 50. Mean volume on the latest session's weekday against other sessions; "+
		"%.4g%%/%.4g%% heavier moves the score %.4g/%.4g toward that weekday's return bias.",
		p.MildRatio, p.StrongRatio, p.MildBonus, p.StrongBonus)
}

// ---------------------------------------------------------------- Institutional timing

type institutionalParams struct {
	Scale           `yaml:",inline"`
	Lookback        int     `yaml:"lookback" default:"120"`
	MinObservations int     `yaml:"min_observations" default:"5"`
	LastDays        int     `yaml:"last_days" default:"3"`
	FirstDays       int     `yaml:"first_days" default:"2"`
	MildDiff        float64 `yaml:"mild_diff" default:"0.1"`
	StrongDiff      float64 `yaml:"strong_diff" default:"0.3"`
	MildBonus       float64 `yaml:"mild_bonus" default:"10"`
	StrongBonus     float64 `yaml:"strong_bonus" default:"25"`
	InWindowBonus   float64 `yaml:"in_window_bonus" default:"10"`
	QuarterBonus    float64 `yaml:"quarter_bonus" default:"5"`
}

// InstitutionalTiming scores the turn-of-month flow window: the last trading days
// of a month and the first of the next, against the rest of the month.
type InstitutionalTiming struct{}

func (InstitutionalTiming) ID() string       { return "institutional_timing" }
func (InstitutionalTiming) Name() string     { return "Institutional Timing" }
func (InstitutionalTiming) Defaults() Params { return defaultsOf[institutionalParams]() }

func (InstitutionalTiming) MaxScore(params Params) float64 {
	p, _ := bind[institutionalParams](params)
	return p.Max()
}

func (InstitutionalTiming) Inputs(params Params) []Input {
	p, _ := bind[institutionalParams](params)
	return []Input{barsInput(period(p.Lookback, 120) + 1)}
}

func (d InstitutionalTiming) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[institutionalParams](params)
	ordered(&p.MildDiff, &p.StrongDiff)
	ordered(&p.MildBonus, &p.StrongBonus)
	nonNegative(&p.InWindowBonus, &p.QuarterBonus)
	lookback, minObs := period(p.Lookback, 120), period(p.MinObservations, 5)
	last, first := period(p.LastDays, 3), period(p.FirstDays, 2)

	bars, res := needBars(d, p.Scale, data, barsInput(lookback+1), 2)
	if res != nil {
		return *res
	}

	inWindow := func(o observation) bool { return turnOfMonth(o.date, last, first) }
	obs := observations(bars, lookback)
	s := partition(obs, inWindow, returnOf)
	if !s.enough(minObs) {
		return tooFew(d, p.Scale, s, minObs, "turn-of-month sessions")
	}

	diff := s.in - s.out
	t := newTally()
	t.note("window_mean_pct", round(s.in))
	t.note("other_mean_pct", round(s.out))
	t.note("diff_pct", round(diff))
	diffLadder(t, diff, p.MildDiff, p.StrongDiff, p.MildBonus, p.StrongBonus, "Turn-of-Month")

	today := bars[len(bars)-1].Date
	active := turnOfMonth(today, last, first)
	t.note("in_window", active)
	if active && math.Abs(diff) >= p.MildDiff {
		t.add(sign(diff)*p.InWindowBonus, "Inside Turn-of-Month Window")
	}
	if active && isQuarterTurn(today) {
		t.note("quarter_end", true)
		// quarter-end turns against the ordinary month turns
		var window []observation
		for _, o := range obs {
			if inWindow(o) {
				window = append(window, o)
			}
		}
		q := partition(window, func(o observation) bool { return isQuarterTurn(o.date) }, returnOf)
		qdiff := q.in - q.out
		t.note("quarter_diff_pct", round(qdiff))
		if q.enough(minObs) && math.Abs(qdiff) >= p.MildDiff {
			t.add(sign(qdiff)*p.QuarterBonus, "Quarter-End Flow")
		}
	}
	return t.result(d, p.Scale, notes)
}

func (InstitutionalTiming) Explain(params Params) string {
	p, _ := bind[institutionalParams](params)
	ordered(&p.MildDiff, &p.StrongDiff)
	return fmt.Sprintf("Starts at 50. Mean return over the last %d and first %d weekdays of each month against other sessions; "+
		"a difference of %.4g%%/%.4g%% moves the score %.4g/%.4g. Inside the window adds a further %.4g in the same direction, "+
		"and at a quarter turn %.4g more when quarter-end turns beat ordinary ones by %.4g%%.",
		period(p.LastDays, 3), period(p.FirstDays, 2), p.MildDiff, p.StrongDiff, p.MildBonus, p.StrongBonus, p.InWindowBonus,
		p.QuarterBonus, p.MildDiff)
}

// turnOfMonth reports whether t falls within the last `last` or first `first`
// weekdays of its month. Exchange holidays are not modelled.
func turnOfMonth(t time.Time, last, first int) bool {
	before, after := 0, 0
	for d := t.AddDate(0, 0, -1); d.Month() == t.Month(); d = d.AddDate(0, 0, -1) {
		if weekday(d) {
			before++
		}
	}
	for d := t.AddDate(0, 0, 1); d.Month() == t.Month(); d = d.AddDate(0, 0, 1) {
		if weekday(d) {
			after++
		}
	}
	return before < first || after < last
}

func isQuarterTurn(t time.Time) bool {
	switch t.Month() {
	case time.March, time.June, time.September, time.December:
		return t.Day() > 15
	case time.January, time.April, time.July, time.October:
		return t.Day() <= 15
	}
	return false
}

func weekday(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}
