package directives

import (
	"fmt"
	"math"

	"github.com/wonny/tradepulse/internal/contracts"
)

// ---------------------------------------------------------------- Volume

type volumeParams struct {
	Scale         `yaml:",inline"`
	Period        int     `yaml:"period" default:"20"`
	HighRatio     float64 `yaml:"high_ratio" default:"1.5"`
	VeryHighRatio float64 `yaml:"very_high_ratio" default:"2"`
	ExtremeRatio  float64 `yaml:"extreme_ratio" default:"3"`
	LowRatio      float64 `yaml:"low_ratio" default:"0.5"`
	HighBonus     float64 `yaml:"high_bonus" default:"10"`
	VeryHighBonus float64 `yaml:"very_high_bonus" default:"20"`
	ExtremeBonus  float64 `yaml:"extreme_bonus" default:"30"`
}

// Volume scores today's volume against its average, signed by the day's price direction
type Volume struct{}

func (Volume) ID() string       { return "volume" }
func (Volume) Name() string     { return "Volume Surge" }
func (Volume) Defaults() Params { return defaultsOf[volumeParams]() }

func (Volume) MaxScore(params Params) float64 {
	p, _ := bind[volumeParams](params)
	return p.Max()
}

func (Volume) Inputs(params Params) []Input {
	p, _ := bind[volumeParams](params)
	return []Input{barsInput(period(p.Period, 20) + 1)}
}

func (d Volume) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[volumeParams](params)
	ascending(&p.HighRatio, &p.VeryHighRatio, &p.ExtremeRatio)
	ordered(&p.HighBonus, &p.VeryHighBonus)
	ordered(&p.VeryHighBonus, &p.ExtremeBonus)

	n := period(p.Period, 20)
	bars, res := needBars(d, p.Scale, data, barsInput(n+1), n+1)
	if res != nil {
		return *res
	}

	today, prev := bars[len(bars)-1], bars[len(bars)-2]
	var volumes []float64
	for _, b := range bars[len(bars)-1-n : len(bars)-1] {
		volumes = append(volumes, b.Volume)
	}
	avg := mean(volumes)
	if avg <= 0 {
		return neutral(d, p.Scale, contracts.StatusInsufficientData, FailureTooFewPoints, "no volume in the averaging window")
	}

	ratio := today.Volume / avg
	dir := 0.0
	switch {
	case today.Close > prev.Close:
		dir = 1
	case today.Close < prev.Close:
		dir = -1
	}

	t := newTally()
	t.note("volume_ratio", round(ratio))
	t.note("average_volume", round(avg))
	t.note("direction", dir)

	word := "Buying"
	if dir < 0 {
		word = "Selling"
	}
	switch {
	case ratio < p.LowRatio:
		t.add(0, "Low Volume")
	case ratio < p.HighRatio:
		// ordinary volume
	case dir == 0:
		t.add(0, fmt.Sprintf("Unusual Volume %.1fx, Flat Close", ratio))
	case ratio >= p.ExtremeRatio:
		t.add(dir*p.ExtremeBonus, fmt.Sprintf("Extreme %s Volume %.1fx", word, ratio))
	case ratio >= p.VeryHighRatio:
		t.add(dir*p.VeryHighBonus, fmt.Sprintf("Heavy %s Volume %.1fx", word, ratio))
	default:
		t.add(dir*p.HighBonus, fmt.Sprintf("Elevated %s Volume %.1fx", word, ratio))
	}
	return t.result(d, p.Scale, notes)
}

func (Volume) Explain(params Params) string {
	p, _ := bind[volumeParams](params)
	ascending(&p.HighRatio, &p.VeryHighRatio, &p.ExtremeRatio)
	return fmt.Sprintf("Starts at 50. Today's volume over its %d-day average at %.4gx/%.4gx/%.4gx moves the score %.4g/%.4g/%.4g "+
		"in the direction of today's close.",
		period(p.Period, 20), p.HighRatio, p.VeryHighRatio, p.ExtremeRatio, p.HighBonus, p.VeryHighBonus, p.ExtremeBonus)
}

// ---------------------------------------------------------------- Momentum

type momentumParams struct {
	Scale        `yaml:",inline"`
	Period       int     `yaml:"period" default:"10"`
	Mild         float64 `yaml:"mild" default:"2"` // percent
	Strong       float64 `yaml:"strong" default:"5"`
	Extreme      float64 `yaml:"extreme" default:"10"`
	MildBonus    float64 `yaml:"mild_bonus" default:"10"`
	StrongBonus  float64 `yaml:"strong_bonus" default:"20"`
	ExtremeBonus float64 `yaml:"extreme_bonus" default:"30"`
}

// Momentum scores the rate of change of the close over a window
type Momentum struct{}

func (Momentum) ID() string       { return "momentum" }
func (Momentum) Name() string     { return "Price Momentum" }
func (Momentum) Defaults() Params { return defaultsOf[momentumParams]() }

func (Momentum) MaxScore(params Params) float64 {
	p, _ := bind[momentumParams](params)
	return p.Max()
}

func (Momentum) Inputs(params Params) []Input {
	p, _ := bind[momentumParams](params)
	return []Input{barsInput(period(p.Period, 10) + 1)}
}

func (d Momentum) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[momentumParams](params)
	ascending(&p.Mild, &p.Strong, &p.Extreme)
	ordered(&p.MildBonus, &p.StrongBonus)
	ordered(&p.StrongBonus, &p.ExtremeBonus)

	n := period(p.Period, 10)
	bars, res := needBars(d, p.Scale, data, barsInput(n+1), n+1)
	if res != nil {
		return *res
	}

	from, to := bars[len(bars)-1-n].Close, bars[len(bars)-1].Close
	if from <= 0 {
		return neutral(d, p.Scale, contracts.StatusInsufficientData, FailureTooFewPoints, "non-positive reference close")
	}
	roc := pctChange(from, to)

	t := newTally()
	t.note("roc_pct", round(roc))
	dir, word := 1.0, "Upward"
	if roc < 0 {
		dir, word = -1, "Downward"
	}
	switch mag := math.Abs(roc); {
	case mag >= p.Extreme:
		t.add(dir*p.ExtremeBonus, fmt.Sprintf("Very Strong %s Momentum (%+.1f%%)", word, roc))
	case mag >= p.Strong:
		t.add(dir*p.StrongBonus, fmt.Sprintf("Strong %s Momentum (%+.1f%%)", word, roc))
	case mag >= p.Mild:
		t.add(dir*p.MildBonus, fmt.Sprintf("%s Momentum (%+.1f%%)", word, roc))
	}
	return t.result(d, p.Scale, notes)
}

func (Momentum) Explain(params Params) string {
	p, _ := bind[momentumParams](params)
	ascending(&p.Mild, &p.Strong, &p.Extreme)
	return fmt.Sprintf("Starts at 50. A %d-day rate of change beyond %.4g%%/%.4g%%/%.4g%% moves the score %.4g/%.4g/%.4g in its direction.",
		period(p.Period, 10), p.Mild, p.Strong, p.Extreme, p.MildBonus, p.StrongBonus, p.ExtremeBonus)
}

// ---------------------------------------------------------------- Moving average crossover

type crossoverParams struct {
	Scale          `yaml:",inline"`
	FastPeriod     int     `yaml:"fast_period" default:"20"`
	SlowPeriod     int     `yaml:"slow_period" default:"50"`
	CrossWindow    int     `yaml:"cross_window" default:"5"`
	CrossBonus     float64 `yaml:"cross_bonus" default:"30"`
	AlignmentBonus float64 `yaml:"alignment_bonus" default:"15"`
	PriceBonus     float64 `yaml:"price_bonus" default:"5"`
}

func (p *crossoverParams) periods() (fast, slow, window int) {
	fast, slow = period(p.FastPeriod, 20), period(p.SlowPeriod, 50)
	if fast >= slow {
		fast, slow = 20, 50
	}
	return fast, slow, period(p.CrossWindow, 5)
}

// MovingAverageCrossover scores golden/death crosses and moving average alignment
type MovingAverageCrossover struct{}

func (MovingAverageCrossover) ID() string       { return "moving_average_crossover" }
func (MovingAverageCrossover) Name() string     { return "Moving Average Crossover" }
func (MovingAverageCrossover) Defaults() Params { return defaultsOf[crossoverParams]() }

func (MovingAverageCrossover) MaxScore(params Params) float64 {
	p, _ := bind[crossoverParams](params)
	return p.Max()
}

func (MovingAverageCrossover) Inputs(params Params) []Input {
	p, _ := bind[crossoverParams](params)
	_, slow, w := p.periods()
	return []Input{barsInput(slow + w)}
}

func (d MovingAverageCrossover) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[crossoverParams](params)
	ordered(&p.AlignmentBonus, &p.CrossBonus)
	nonNegative(&p.PriceBonus)

	fast, slow, w := p.periods()
	bars, res := needBars(d, p.Scale, data, barsInput(slow+w), slow+w)
	if res != nil {
		return *res
	}

	closes := contracts.Closes(bars)
	last := len(closes) - 1
	spread := func(i int) float64 {
		return sma(closes, i, fast) - sma(closes, i, slow)
	}

	now := spread(last)
	fastMA := sma(closes, last, fast)

	t := newTally()
	t.note("fast_ma", round(fastMA))
	t.note("slow_ma", round(sma(closes, last, slow)))

	crossed := false
	for i := last - w; i < last; i++ {
		if (now > 0 && spread(i) <= 0) || (now < 0 && spread(i) >= 0) {
			crossed = true
			t.note("cross_bars_ago", last-i-1)
			break
		}
	}

	switch {
	case crossed && now > 0:
		t.add(p.CrossBonus, "Golden Cross")
	case crossed && now < 0:
		t.add(-p.CrossBonus, "Death Cross")
	case now > 0:
		t.add(p.AlignmentBonus, "Bullish MA Alignment")
	case now < 0:
		t.add(-p.AlignmentBonus, "Bearish MA Alignment")
	}

	switch price := closes[last]; {
	case price > fastMA:
		t.add(p.PriceBonus, fmt.Sprintf("Price Above SMA%d", fast))
	case price < fastMA:
		t.add(-p.PriceBonus, fmt.Sprintf("Price Below SMA%d", fast))
	}
	return t.result(d, p.Scale, notes)
}

func (MovingAverageCrossover) Explain(params Params) string {
	p, _ := bind[crossoverParams](params)
	fast, slow, w := p.periods()
	return fmt.Sprintf("Starts at 50. SMA%d crossing SMA%d within the last %d days is worth ±%.4g; otherwise their order is worth ±%.4g. "+
		"Close above/below SMA%d adds ±%.4g.", fast, slow, w, p.CrossBonus, p.AlignmentBonus, fast, p.PriceBonus)
}

// ---------------------------------------------------------------- Support / resistance

type supportResistanceParams struct {
	Scale         `yaml:",inline"`
	Lookback      int     `yaml:"lookback" default:"60"`
	MinBars       int     `yaml:"min_bars" default:"20"`
	NearPct       float64 `yaml:"near_pct" default:"2"`
	BreakoutBonus float64 `yaml:"breakout_bonus" default:"30"`
	NearBonus     float64 `yaml:"near_bonus" default:"20"`
}

// SupportResistance scores the close against the prior range's low and high
type SupportResistance struct{}

func (SupportResistance) ID() string       { return "support_resistance" }
func (SupportResistance) Name() string     { return "Support & Resistance" }
func (SupportResistance) Defaults() Params { return defaultsOf[supportResistanceParams]() }

func (SupportResistance) MaxScore(params Params) float64 {
	p, _ := bind[supportResistanceParams](params)
	return p.Max()
}

func (SupportResistance) Inputs(params Params) []Input {
	p, _ := bind[supportResistanceParams](params)
	return []Input{barsInput(period(p.Lookback, 60) + 1)}
}

func (d SupportResistance) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[supportResistanceParams](params)
	ordered(&p.NearBonus, &p.BreakoutBonus)
	nonNegative(&p.NearPct)
	lookback := period(p.Lookback, 60)
	minBars := period(p.MinBars, 20)
	if minBars > lookback {
		minBars = lookback
	}

	bars, res := needBars(d, p.Scale, data, barsInput(lookback+1), minBars+1)
	if res != nil {
		return *res
	}

	window := bars[:len(bars)-1]
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	support, resistance := window[0].Low, window[0].High
	for _, b := range window[1:] {
		support = math.Min(support, b.Low)
		resistance = math.Max(resistance, b.High)
	}
	price := bars[len(bars)-1].Close

	t := newTally()
	t.note("support", support)
	t.note("resistance", resistance)
	t.note("close", price)

	switch {
	case price > resistance:
		t.add(p.BreakoutBonus, "Breakout Above Resistance")
	case price < support:
		t.add(-p.BreakoutBonus, "Breakdown Below Support")
	case support > 0 && (price-support)/support*100 <= p.NearPct:
		t.add(p.NearBonus, "Near Support")
	case resistance > 0 && (resistance-price)/resistance*100 <= p.NearPct:
		t.add(-p.NearBonus, "Near Resistance")
	default:
		t.add(0, "Mid Range")
	}
	return t.result(d, p.Scale, notes)
}

func (SupportResistance) Explain(params Params) string {
	p, _ := bind[supportResistanceParams](params)
	return fmt.Sprintf("Starts at 50. Support and resistance are the low and high of the prior %d days. "+
		"A close beyond either is worth ±%.4g; within %.4g%% of support adds %.4g, of resistance subtracts it.",
		period(p.Lookback, 60), p.BreakoutBonus, p.NearPct, p.NearBonus)
}

// ---------------------------------------------------------------- Volatility

type volatilityParams struct {
	Scale          `yaml:",inline"`
	ShortPeriod    int     `yaml:"short_period" default:"20"`
	LongPeriod     int     `yaml:"long_period" default:"60"`
	CalmRatio      float64 `yaml:"calm_ratio" default:"0.7"`
	HighRatio      float64 `yaml:"high_ratio" default:"1.5"`
	ExtremeRatio   float64 `yaml:"extreme_ratio" default:"2"`
	CalmBonus      float64 `yaml:"calm_bonus" default:"15"`
	HighPenalty    float64 `yaml:"high_penalty" default:"15"`
	ExtremePenalty float64 `yaml:"extreme_penalty" default:"25"`
}

// Volatility scores short-term realised volatility against its longer baseline.
// Contracting volatility is mildly bullish, expanding volatility bearish.
type Volatility struct{}

func (Volatility) ID() string       { return "volatility" }
func (Volatility) Name() string     { return "Volatility Regime" }
func (Volatility) Defaults() Params { return defaultsOf[volatilityParams]() }

func (Volatility) MaxScore(params Params) float64 {
	p, _ := bind[volatilityParams](params)
	return p.Max()
}

func (p *volatilityParams) periods() (short, long int) {
	short, long = period(p.ShortPeriod, 20), period(p.LongPeriod, 60)
	if short < 2 || short >= long {
		short, long = 20, 60
	}
	return short, long
}

func (Volatility) Inputs(params Params) []Input {
	p, _ := bind[volatilityParams](params)
	_, long := p.periods()
	return []Input{barsInput(long + 1)}
}

func (d Volatility) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[volatilityParams](params)
	ascending(&p.CalmRatio, &p.HighRatio, &p.ExtremeRatio)
	nonNegative(&p.CalmBonus)
	ordered(&p.HighPenalty, &p.ExtremePenalty)

	short, long := p.periods()
	bars, res := needBars(d, p.Scale, data, barsInput(long+1), long+1)
	if res != nil {
		return *res
	}

	returns := dailyReturns(bars[len(bars)-1-long:])
	if len(returns) <= short {
		return neutral(d, p.Scale, contracts.StatusInsufficientData, FailureTooFewPoints,
			fmt.Sprintf("need %d valid returns, have %d", short+1, len(returns)))
	}
	longVol := stddev(returns)
	shortVol := stddev(returns[len(returns)-short:])

	t := newTally()
	t.note("short_vol_annualized", round(shortVol*math.Sqrt(252)*100))
	t.note("long_vol_annualized", round(longVol*math.Sqrt(252)*100))
	if longVol == 0 {
		t.add(0, "Flat Price History")
		return t.result(d, p.Scale, notes)
	}

	ratio := shortVol / longVol
	t.note("ratio", round(ratio))
	switch {
	case ratio >= p.ExtremeRatio:
		t.add(-p.ExtremePenalty, fmt.Sprintf("Volatility Spike (%.1fx)", ratio))
	case ratio >= p.HighRatio:
		t.add(-p.HighPenalty, fmt.Sprintf("Rising Volatility (%.1fx)", ratio))
	case ratio <= p.CalmRatio:
		t.add(p.CalmBonus, fmt.Sprintf("Volatility Contraction (%.1fx)", ratio))
	}
	return t.result(d, p.Scale, notes)
}

func (Volatility) Explain(params Params) string {
	p, _ := bind[volatilityParams](params)
	short, long := p.periods()
	ascending(&p.CalmRatio, &p.HighRatio, &p.ExtremeRatio)
	return fmt.Sprintf("Starts at 50. Compares %d-day with %d-day return volatility. A ratio at or under %.4g adds %.4g; "+
		"at or over %.4g subtracts %.4g, at or over %.4g subtracts %.4g.",
		short, long, p.CalmRatio, p.CalmBonus, p.HighRatio, p.HighPenalty, p.ExtremeRatio, p.ExtremePenalty)
}

// sma is the simple average of the n closes ending at index end
func sma(closes []float64, end, n int) float64 {
	return mean(closes[end-n+1 : end+1])
}

func dailyReturns(bars []contracts.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		if r, ok := bars[i].Return(bars[i-1]); ok {
			out = append(out, r)
		}
	}
	return out
}
