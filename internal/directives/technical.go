package directives

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wonny/tradepulse/internal/contracts"
)

// ---------------------------------------------------------------- RSI

type rsiParams struct {
	Scale             `yaml:",inline"`
	Period            int     `yaml:"period" default:"14"`
	Oversold          float64 `yaml:"oversold" default:"30"`
	Overbought        float64 `yaml:"overbought" default:"70"`
	ExtremeOversold   float64 `yaml:"extreme_oversold" default:"20"`
	ExtremeOverbought float64 `yaml:"extreme_overbought" default:"80"`
	OversoldBonus     float64 `yaml:"oversold_bonus" default:"30"`
	ExtremeBonus      float64 `yaml:"extreme_bonus" default:"25"`
	ApproachingBonus  float64 `yaml:"approaching_bonus" default:"10"`
	ApproachBand      float64 `yaml:"approach_band" default:"5"`
	MomentumBonus     float64 `yaml:"momentum_bonus" default:"5"`
}

func (p *rsiParams) bands() bands {
	b := bands{
		oversold: p.Oversold, overbought: p.Overbought,
		extremeOversold: p.ExtremeOversold, extremeOverbought: p.ExtremeOverbought,
		approach: p.ApproachBand, zoneBonus: p.OversoldBonus, extremeBonus: p.ExtremeBonus,
		approachBonus: p.ApproachingBonus,
	}
	b.normalize(bands{oversold: 30, overbought: 70})
	return b
}

// RSI scores the relative strength index: oversold is bullish
type RSI struct{}

func (RSI) ID() string       { return "rsi" }
func (RSI) Name() string     { return "RSI" }
func (RSI) Defaults() Params { return defaultsOf[rsiParams]() }

func (RSI) MaxScore(params Params) float64 {
	p, _ := bind[rsiParams](params)
	return p.Max()
}

func (RSI) input(p *rsiParams) Input {
	return indicatorInput("RSI", map[string]string{"time_period": strconv.Itoa(period(p.Period, 14))})
}

func (d RSI) Inputs(params Params) []Input {
	p, _ := bind[rsiParams](params)
	return []Input{d.input(p)}
}

func (d RSI) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[rsiParams](params)
	reading, res := needIndicator(d, p.Scale, data, d.input(p), "rsi")
	if res != nil {
		return *res
	}

	rsi := reading.Values["rsi"]
	t := newTally()
	t.note("rsi", rsi)
	p.bands().apply(t, "RSI", rsi)

	if prev, ok := reading.Previous("rsi"); ok {
		switch {
		case rsi > prev && rsi < 50:
			t.add(math.Max(p.MomentumBonus, 0), "RSI Turning Up")
		case rsi < prev && rsi > 50:
			t.add(-math.Max(p.MomentumBonus, 0), "RSI Turning Down")
		}
		t.note("prev_rsi", prev)
	}
	return t.result(d, p.Scale, notes)
}

func (RSI) Explain(params Params) string {
	p, _ := bind[rsiParams](params)
	return fmt.Sprintf("Starts at 50. %s RSI rising below 50 adds %.4g, falling above 50 subtracts it. Period %d.",
		p.bands().explain("RSI"), p.MomentumBonus, period(p.Period, 14))
}

// ---------------------------------------------------------------- MACD

type macdParams struct {
	Scale          `yaml:",inline"`
	FastPeriod     int     `yaml:"fast_period" default:"12"`
	SlowPeriod     int     `yaml:"slow_period" default:"26"`
	SignalPeriod   int     `yaml:"signal_period" default:"9"`
	CrossoverBonus float64 `yaml:"crossover_bonus" default:"25"`
	TrendBonus     float64 `yaml:"trend_bonus" default:"15"`
	ExpandingBonus float64 `yaml:"expanding_bonus" default:"5"`
	ZeroLineBonus  float64 `yaml:"zero_line_bonus" default:"10"`
}

// MACD scores histogram crossovers and the zero line
type MACD struct{}

func (MACD) ID() string       { return "macd" }
func (MACD) Name() string     { return "MACD" }
func (MACD) Defaults() Params { return defaultsOf[macdParams]() }

func (MACD) MaxScore(params Params) float64 {
	p, _ := bind[macdParams](params)
	return p.Max()
}

func (MACD) input(p *macdParams) Input {
	fast, slow := period(p.FastPeriod, 12), period(p.SlowPeriod, 26)
	if fast >= slow {
		fast, slow = 12, 26
	}
	return indicatorInput("MACD", map[string]string{
		"fastperiod":   strconv.Itoa(fast),
		"slowperiod":   strconv.Itoa(slow),
		"signalperiod": strconv.Itoa(period(p.SignalPeriod, 9)),
	})
}

func (d MACD) Inputs(params Params) []Input {
	p, _ := bind[macdParams](params)
	return []Input{d.input(p)}
}

func (d MACD) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[macdParams](params)
	ordered(&p.TrendBonus, &p.CrossoverBonus)
	nonNegative(&p.ExpandingBonus, &p.ZeroLineBonus)

	reading, res := needIndicator(d, p.Scale, data, d.input(p), "macd", "macd_hist")
	if res != nil {
		return *res
	}

	macd, hist := reading.Values["macd"], reading.Values["macd_hist"]
	prevHist, hasPrev := reading.Previous("macd_hist")

	t := newTally()
	t.note("macd", macd)
	t.note("histogram", hist)

	switch {
	case hasPrev && hist > 0 && prevHist <= 0:
		t.add(p.CrossoverBonus, "MACD Bullish Crossover")
	case hasPrev && hist < 0 && prevHist >= 0:
		t.add(-p.CrossoverBonus, "MACD Bearish Crossover")
	case hist > 0:
		t.add(p.TrendBonus, "MACD Bullish Momentum")
	case hist < 0:
		t.add(-p.TrendBonus, "MACD Bearish Momentum")
	}

	if hasPrev && math.Abs(hist) > math.Abs(prevHist) && hist != 0 {
		t.add(sign(hist)*p.ExpandingBonus, "Histogram Expanding")
	}

	switch {
	case macd > 0:
		t.add(p.ZeroLineBonus, "Above Zero Line")
	case macd < 0:
		t.add(-p.ZeroLineBonus, "Below Zero Line")
	}
	return t.result(d, p.Scale, notes)
}

func (d MACD) Explain(params Params) string {
	p, _ := bind[macdParams](params)
	in := d.input(p)
	return fmt.Sprintf("Starts at 50. A histogram sign change is a crossover worth ±%.4g; otherwise the histogram sign is worth ±%.4g. "+
		"An expanding histogram adds ±%.4g and MACD above/below zero adds ±%.4g. MACD(%s,%s,%s).",
		p.CrossoverBonus, p.TrendBonus, p.ExpandingBonus, p.ZeroLineBonus,
		in.Params["fastperiod"], in.Params["slowperiod"], in.Params["signalperiod"])
}

// ---------------------------------------------------------------- ADX

type adxParams struct {
	Scale           `yaml:",inline"`
	Period          int     `yaml:"period" default:"14"`
	DirectionPeriod int     `yaml:"direction_period" default:"20"`
	Weak            float64 `yaml:"weak" default:"20"`
	Strong          float64 `yaml:"strong" default:"25"`
	VeryStrong      float64 `yaml:"very_strong" default:"40"`
	DevelopingBonus float64 `yaml:"developing_bonus" default:"10"`
	StrongBonus     float64 `yaml:"strong_bonus" default:"20"`
	VeryStrongBonus float64 `yaml:"very_strong_bonus" default:"30"`
}

// ADX scores trend strength in the direction of price relative to its moving average
type ADX struct{}

func (ADX) ID() string       { return "adx" }
func (ADX) Name() string     { return "ADX Trend Strength" }
func (ADX) Defaults() Params { return defaultsOf[adxParams]() }

func (ADX) MaxScore(params Params) float64 {
	p, _ := bind[adxParams](params)
	return p.Max()
}

func (ADX) inputs(p *adxParams) (Input, Input) {
	return indicatorInput("ADX", map[string]string{"time_period": strconv.Itoa(period(p.Period, 14))}),
		barsInput(period(p.DirectionPeriod, 20) + 1)
}

func (d ADX) Inputs(params Params) []Input {
	p, _ := bind[adxParams](params)
	a, b := d.inputs(p)
	return []Input{a, b}
}

func (d ADX) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[adxParams](params)
	ascending(&p.Weak, &p.Strong, &p.VeryStrong)
	ordered(&p.DevelopingBonus, &p.StrongBonus)
	ordered(&p.StrongBonus, &p.VeryStrongBonus)

	adxIn, barsIn := d.inputs(p)
	reading, res := needIndicator(d, p.Scale, data, adxIn, "adx")
	if res != nil {
		return *res
	}
	n := period(p.DirectionPeriod, 20)
	bars, res := needBars(d, p.Scale, data, barsIn, n+1)
	if res != nil {
		return *res
	}

	adx := reading.Values["adx"]
	closes := contracts.Closes(bars)
	last := closes[len(closes)-1]
	ma := mean(closes[len(closes)-n:])
	dir := 0.0
	switch {
	case last > ma:
		dir = 1
	case last < ma:
		dir = -1
	}

	t := newTally()
	t.note("adx", adx)
	t.note("direction", dir)
	t.note("sma", round(ma))

	trend := "Uptrend"
	if dir < 0 {
		trend = "Downtrend"
	}
	switch {
	case dir == 0:
		t.add(0, "Trend Direction Unclear")
	case adx >= p.VeryStrong:
		t.add(dir*p.VeryStrongBonus, fmt.Sprintf("Very Strong %s (ADX %.1f)", trend, adx))
	case adx >= p.Strong:
		t.add(dir*p.StrongBonus, fmt.Sprintf("Strong %s (ADX %.1f)", trend, adx))
	case adx >= p.Weak:
		t.add(dir*p.DevelopingBonus, fmt.Sprintf("Developing %s (ADX %.1f)", trend, adx))
	default:
		t.add(0, fmt.Sprintf("No Trend (ADX %.1f)", adx))
	}
	return t.result(d, p.Scale, notes)
}

func (ADX) Explain(params Params) string {
	p, _ := bind[adxParams](params)
	ascending(&p.Weak, &p.Strong, &p.VeryStrong)
	return fmt.Sprintf("Starts at 50. Direction is the last close against its %d-day average. "+
		"ADX at or above %.4g/%.4g/%.4g moves the score by %.4g/%.4g/%.4g in that direction.",
		period(p.DirectionPeriod, 20), p.Weak, p.Strong, p.VeryStrong, p.DevelopingBonus, p.StrongBonus, p.VeryStrongBonus)
}

// ---------------------------------------------------------------- CCI

type cciParams struct {
	Scale             `yaml:",inline"`
	Period            int     `yaml:"period" default:"20"`
	Oversold          float64 `yaml:"oversold" default:"-100"`
	Overbought        float64 `yaml:"overbought" default:"100"`
	ExtremeOversold   float64 `yaml:"extreme_oversold" default:"-200"`
	ExtremeOverbought float64 `yaml:"extreme_overbought" default:"200"`
	ZoneBonus         float64 `yaml:"zone_bonus" default:"30"`
	ExtremeBonus      float64 `yaml:"extreme_bonus" default:"20"`
	ApproachingBonus  float64 `yaml:"approaching_bonus" default:"10"`
	ApproachBand      float64 `yaml:"approach_band" default:"20"`
}

// CCI scores the commodity channel index
type CCI struct{}

func (CCI) ID() string       { return "cci" }
func (CCI) Name() string     { return "CCI" }
func (CCI) Defaults() Params { return defaultsOf[cciParams]() }

func (CCI) MaxScore(params Params) float64 {
	p, _ := bind[cciParams](params)
	return p.Max()
}

func (p *cciParams) bands() bands {
	b := bands{
		oversold: p.Oversold, overbought: p.Overbought,
		extremeOversold: p.ExtremeOversold, extremeOverbought: p.ExtremeOverbought,
		approach: p.ApproachBand, zoneBonus: p.ZoneBonus, extremeBonus: p.ExtremeBonus,
		approachBonus: p.ApproachingBonus,
	}
	b.normalize(bands{oversold: -100, overbought: 100})
	return b
}

func (CCI) input(p *cciParams) Input {
	return indicatorInput("CCI", map[string]string{"time_period": strconv.Itoa(period(p.Period, 20))})
}

func (d CCI) Inputs(params Params) []Input {
	p, _ := bind[cciParams](params)
	return []Input{d.input(p)}
}

func (d CCI) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[cciParams](params)
	reading, res := needIndicator(d, p.Scale, data, d.input(p), "cci")
	if res != nil {
		return *res
	}

	cci := reading.Values["cci"]
	t := newTally()
	t.note("cci", cci)
	p.bands().apply(t, "CCI", cci)
	return t.result(d, p.Scale, notes)
}

func (CCI) Explain(params Params) string {
	p, _ := bind[cciParams](params)
	return "Starts at 50. " + p.bands().explain("CCI")
}

// ---------------------------------------------------------------- EMA

type emaParams struct {
	Scale          `yaml:",inline"`
	Period         int     `yaml:"period" default:"20"`
	StrongDistance float64 `yaml:"strong_distance" default:"5"` // percent
	AboveBonus     float64 `yaml:"above_bonus" default:"15"`
	StrongBonus    float64 `yaml:"strong_bonus" default:"25"`
	SlopeBonus     float64 `yaml:"slope_bonus" default:"10"`
}

// EMA scores price distance from its exponential moving average and the average's slope
type EMA struct{}

func (EMA) ID() string       { return "ema" }
func (EMA) Name() string     { return "EMA Position" }
func (EMA) Defaults() Params { return defaultsOf[emaParams]() }

func (EMA) MaxScore(params Params) float64 {
	p, _ := bind[emaParams](params)
	return p.Max()
}

func (EMA) input(p *emaParams) Input {
	return indicatorInput("EMA", map[string]string{"time_period": strconv.Itoa(period(p.Period, 20))})
}

func (d EMA) Inputs(params Params) []Input {
	p, _ := bind[emaParams](params)
	return []Input{d.input(p), quoteInput()}
}

func (d EMA) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[emaParams](params)
	ordered(&p.AboveBonus, &p.StrongBonus)
	nonNegative(&p.StrongDistance, &p.SlopeBonus)

	reading, res := needIndicator(d, p.Scale, data, d.input(p), "ema")
	if res != nil {
		return *res
	}
	price, res := needPrice(d, p.Scale, data)
	if res != nil {
		return *res
	}

	ema := reading.Values["ema"]
	if ema <= 0 {
		return neutral(d, p.Scale, contracts.StatusNoData, FailureMissingInput, "EMA reading is not positive")
	}
	dist := (price - ema) / ema * 100

	t := newTally()
	t.note("ema", ema)
	t.note("price", price)
	t.note("distance_pct", round(dist))
	distanceLadder(t, dist, p.StrongDistance, p.AboveBonus, p.StrongBonus, "EMA")

	if prev, ok := reading.Previous("ema"); ok {
		switch {
		case ema > prev:
			t.add(p.SlopeBonus, "EMA Rising")
		case ema < prev:
			t.add(-p.SlopeBonus, "EMA Falling")
		}
	}
	return t.result(d, p.Scale, notes)
}

func (EMA) Explain(params Params) string {
	p, _ := bind[emaParams](params)
	return fmt.Sprintf("Starts at 50. Price above the %d-period EMA adds %.4g, more than %.4g%% above adds %.4g; below subtracts the same. "+
		"A rising EMA adds %.4g, a falling one subtracts it.",
		period(p.Period, 20), p.AboveBonus, p.StrongDistance, p.StrongBonus, p.SlopeBonus)
}

// ---------------------------------------------------------------- Bollinger Bands

type bollingerParams struct {
	Scale            `yaml:",inline"`
	Period           int     `yaml:"period" default:"20"`
	StdDev           float64 `yaml:"std_dev" default:"2"`
	LowerZone        float64 `yaml:"lower_zone" default:"0.2"`
	UpperZone        float64 `yaml:"upper_zone" default:"0.8"`
	ZoneBonus        float64 `yaml:"zone_bonus" default:"20"`
	OutsideBonus     float64 `yaml:"outside_bonus" default:"35"`
	SqueezeThreshold float64 `yaml:"squeeze_threshold" default:"0.05"`
}

// BollingerBands scores where price sits inside the bands (%B)
type BollingerBands struct{}

func (BollingerBands) ID() string       { return "bollinger_bands" }
func (BollingerBands) Name() string     { return "Bollinger Bands" }
func (BollingerBands) Defaults() Params { return defaultsOf[bollingerParams]() }

func (BollingerBands) MaxScore(params Params) float64 {
	p, _ := bind[bollingerParams](params)
	return p.Max()
}

func (BollingerBands) input(p *bollingerParams) Input {
	dev := p.StdDev
	if dev <= 0 {
		dev = 2
	}
	d := strconv.FormatFloat(dev, 'f', -1, 64)
	return indicatorInput("BBANDS", map[string]string{
		"time_period": strconv.Itoa(period(p.Period, 20)),
		"nbdevup":     d,
		"nbdevdn":     d,
	})
}

func (d BollingerBands) Inputs(params Params) []Input {
	p, _ := bind[bollingerParams](params)
	return []Input{d.input(p), quoteInput()}
}

func (d BollingerBands) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[bollingerParams](params)
	ordered(&p.ZoneBonus, &p.OutsideBonus)
	if p.LowerZone < 0 || p.UpperZone > 1 || p.LowerZone >= p.UpperZone {
		p.LowerZone, p.UpperZone = 0.2, 0.8
	}

	reading, res := needIndicator(d, p.Scale, data, d.input(p), "real_upper_band", "real_middle_band", "real_lower_band")
	if res != nil {
		return *res
	}
	price, res := needPrice(d, p.Scale, data)
	if res != nil {
		return *res
	}

	upper, middle, lower := reading.Values["real_upper_band"], reading.Values["real_middle_band"], reading.Values["real_lower_band"]
	if upper <= lower || middle <= 0 {
		return neutral(d, p.Scale, contracts.StatusNoData, FailureMissingInput, "degenerate Bollinger bands")
	}

	pctB := (price - lower) / (upper - lower)
	bandwidth := (upper - lower) / middle

	t := newTally()
	t.note("percent_b", round(pctB))
	t.note("bandwidth", round(bandwidth))
	switch {
	case pctB < 0:
		t.add(p.OutsideBonus, "Below Lower Band")
	case pctB < p.LowerZone:
		t.add(p.ZoneBonus, "Near Lower Band")
	case pctB > 1:
		t.add(-p.OutsideBonus, "Above Upper Band")
	case pctB > p.UpperZone:
		t.add(-p.ZoneBonus, "Near Upper Band")
	}
	if bandwidth < p.SqueezeThreshold {
		t.add(0, "Band Squeeze")
	}
	return t.result(d, p.Scale, notes)
}

func (BollingerBands) Explain(params Params) string {
	p, _ := bind[bollingerParams](params)
	return fmt.Sprintf("Starts at 50. %%B below 0 adds %.4g and below %.4g adds %.4g; above 1 subtracts %.4g and above %.4g subtracts %.4g. "+
		"Bandwidth under %.4g is reported as a squeeze.",
		p.OutsideBonus, p.LowerZone, p.ZoneBonus, p.OutsideBonus, p.UpperZone, p.ZoneBonus, p.SqueezeThreshold)
}

// ---------------------------------------------------------------- MFI

type mfiParams struct {
	Scale             `yaml:",inline"`
	Period            int     `yaml:"period" default:"14"`
	Oversold          float64 `yaml:"oversold" default:"20"`
	Overbought        float64 `yaml:"overbought" default:"80"`
	ExtremeOversold   float64 `yaml:"extreme_oversold" default:"10"`
	ExtremeOverbought float64 `yaml:"extreme_overbought" default:"90"`
	ZoneBonus         float64 `yaml:"zone_bonus" default:"30"`
	ExtremeBonus      float64 `yaml:"extreme_bonus" default:"20"`
	ApproachingBonus  float64 `yaml:"approaching_bonus" default:"10"`
	ApproachBand      float64 `yaml:"approach_band" default:"5"`
}

func (p *mfiParams) bands() bands {
	b := bands{
		oversold: p.Oversold, overbought: p.Overbought,
		extremeOversold: p.ExtremeOversold, extremeOverbought: p.ExtremeOverbought,
		approach: p.ApproachBand, zoneBonus: p.ZoneBonus, extremeBonus: p.ExtremeBonus,
		approachBonus: p.ApproachingBonus,
	}
	b.normalize(bands{oversold: 20, overbought: 80})
	return b
}

// MFI scores the money flow index
type MFI struct{}

func (MFI) ID() string       { return "mfi" }
func (MFI) Name() string     { return "Money Flow Index" }
func (MFI) Defaults() Params { return defaultsOf[mfiParams]() }

func (MFI) MaxScore(params Params) float64 {
	p, _ := bind[mfiParams](params)
	return p.Max()
}

func (MFI) input(p *mfiParams) Input {
	return indicatorInput("MFI", map[string]string{"time_period": strconv.Itoa(period(p.Period, 14))})
}

func (d MFI) Inputs(params Params) []Input {
	p, _ := bind[mfiParams](params)
	return []Input{d.input(p)}
}

func (d MFI) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[mfiParams](params)
	reading, res := needIndicator(d, p.Scale, data, d.input(p), "mfi")
	if res != nil {
		return *res
	}

	mfi := reading.Values["mfi"]
	t := newTally()
	t.note("mfi", mfi)
	p.bands().apply(t, "MFI", mfi)
	return t.result(d, p.Scale, notes)
}

func (MFI) Explain(params Params) string {
	p, _ := bind[mfiParams](params)
	return "Starts at 50. " + p.bands().explain("MFI")
}

// ---------------------------------------------------------------- OBV

type obvParams struct {
	Scale           `yaml:",inline"`
	Lookback        int     `yaml:"lookback" default:"10"`
	FlatPct         float64 `yaml:"flat_pct" default:"0.5"`
	ConfirmBonus    float64 `yaml:"confirm_bonus" default:"15"`
	DivergenceBonus float64 `yaml:"divergence_bonus" default:"25"`
}

// OBV scores on-balance volume trend against the price trend
type OBV struct{}

func (OBV) ID() string       { return "obv" }
func (OBV) Name() string     { return "On-Balance Volume" }
func (OBV) Defaults() Params { return defaultsOf[obvParams]() }

func (OBV) MaxScore(params Params) float64 {
	p, _ := bind[obvParams](params)
	return p.Max()
}

func (OBV) inputs(p *obvParams) (Input, Input) {
	return indicatorInput("OBV", map[string]string{}), barsInput(period(p.Lookback, 10) + 1)
}

func (d OBV) Inputs(params Params) []Input {
	p, _ := bind[obvParams](params)
	a, b := d.inputs(p)
	return []Input{a, b}
}

func (d OBV) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[obvParams](params)
	nonNegative(&p.FlatPct, &p.ConfirmBonus, &p.DivergenceBonus)
	n := period(p.Lookback, 10)

	obvIn, barsIn := d.inputs(p)
	reading, res := needIndicator(d, p.Scale, data, obvIn, "obv")
	if res != nil {
		return *res
	}
	if len(reading.Series) < n+1 {
		return neutral(d, p.Scale, contracts.StatusInsufficientData, FailureTooFewPoints,
			fmt.Sprintf("need %d OBV points, have %d", n+1, len(reading.Series)))
	}
	bars, res := needBars(d, p.Scale, data, barsIn, n+1)
	if res != nil {
		return *res
	}

	s := reading.Series
	obvChange := pctChange(s[len(s)-1-n].Value, s[len(s)-1].Value)
	priceChange := pctChange(bars[len(bars)-1-n].Close, bars[len(bars)-1].Close)

	t := newTally()
	t.note("obv_change_pct", round(obvChange))
	t.note("price_change_pct", round(priceChange))

	obvDir, priceDir := direction(obvChange, p.FlatPct), direction(priceChange, p.FlatPct)
	switch {
	case obvDir > 0 && priceDir > 0:
		t.add(p.ConfirmBonus, "Volume Confirms Uptrend")
	case obvDir > 0:
		t.add(p.DivergenceBonus, "Bullish OBV Divergence")
	case obvDir < 0 && priceDir < 0:
		t.add(-p.ConfirmBonus, "Volume Confirms Downtrend")
	case obvDir < 0:
		t.add(-p.DivergenceBonus, "Bearish OBV Divergence")
	default:
		t.add(0, "OBV Flat")
	}
	return t.result(d, p.Scale, notes)
}

func (OBV) Explain(params Params) string {
	p, _ := bind[obvParams](params)
	return fmt.Sprintf("Starts at 50. Compares %d-day OBV change with price change (moves under %.4g%% are flat). "+
		"Agreement moves the score %.4g in the trend direction; OBV diverging from price moves it %.4g in the OBV direction.",
		period(p.Lookback, 10), p.FlatPct, p.ConfirmBonus, p.DivergenceBonus)
}

// ---------------------------------------------------------------- VWAP

var vwapIntervals = map[string]bool{"1min": true, "5min": true, "15min": true, "30min": true, "60min": true}

type vwapParams struct {
	Scale          `yaml:",inline"`
	Interval       string  `yaml:"interval" default:"15min"`
	StrongDistance float64 `yaml:"strong_distance" default:"2"` // percent
	AboveBonus     float64 `yaml:"above_bonus" default:"15"`
	StrongBonus    float64 `yaml:"strong_bonus" default:"25"`
}

// VWAP scores price against the intraday volume weighted average price
type VWAP struct{}

func (VWAP) ID() string       { return "vwap" }
func (VWAP) Name() string     { return "VWAP" }
func (VWAP) Defaults() Params { return defaultsOf[vwapParams]() }

func (VWAP) MaxScore(params Params) float64 {
	p, _ := bind[vwapParams](params)
	return p.Max()
}

func (VWAP) input(p *vwapParams) Input {
	interval := p.Interval
	if !vwapIntervals[interval] {
		interval = "15min"
	}
	return indicatorInput("VWAP", map[string]string{"interval": interval})
}

func (d VWAP) Inputs(params Params) []Input {
	p, _ := bind[vwapParams](params)
	return []Input{d.input(p), quoteInput()}
}

func (d VWAP) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[vwapParams](params)
	ordered(&p.AboveBonus, &p.StrongBonus)
	nonNegative(&p.StrongDistance)

	reading, res := needIndicator(d, p.Scale, data, d.input(p), "vwap")
	if res != nil {
		return *res
	}
	price, res := needPrice(d, p.Scale, data)
	if res != nil {
		return *res
	}

	vwap := reading.Values["vwap"]
	if vwap <= 0 {
		return neutral(d, p.Scale, contracts.StatusNoData, FailureMissingInput, "VWAP reading is not positive")
	}
	dist := (price - vwap) / vwap * 100

	t := newTally()
	t.note("vwap", vwap)
	t.note("price", price)
	t.note("distance_pct", round(dist))
	distanceLadder(t, dist, p.StrongDistance, p.AboveBonus, p.StrongBonus, "VWAP")
	return t.result(d, p.Scale, notes)
}

func (d VWAP) Explain(params Params) string {
	p, _ := bind[vwapParams](params)
	return fmt.Sprintf("Starts at 50. Price above %s VWAP adds %.4g, more than %.4g%% above adds %.4g; below subtracts the same.",
		d.input(p).Params["interval"], p.AboveBonus, p.StrongDistance, p.StrongBonus)
}

// ---------------------------------------------------------------- Stochastic

type stochasticParams struct {
	Scale             `yaml:",inline"`
	FastKPeriod       int     `yaml:"fastk_period" default:"14"`
	SlowKPeriod       int     `yaml:"slowk_period" default:"3"`
	SlowDPeriod       int     `yaml:"slowd_period" default:"3"`
	Oversold          float64 `yaml:"oversold" default:"20"`
	Overbought        float64 `yaml:"overbought" default:"80"`
	ExtremeOversold   float64 `yaml:"extreme_oversold" default:"10"`
	ExtremeOverbought float64 `yaml:"extreme_overbought" default:"90"`
	ZoneBonus         float64 `yaml:"zone_bonus" default:"30"`
	ExtremeBonus      float64 `yaml:"extreme_bonus" default:"20"`
	ApproachingBonus  float64 `yaml:"approaching_bonus" default:"10"`
	ApproachBand      float64 `yaml:"approach_band" default:"5"`
	CrossoverBonus    float64 `yaml:"crossover_bonus" default:"10"`
}

func (p *stochasticParams) bands() bands {
	b := bands{
		oversold: p.Oversold, overbought: p.Overbought,
		extremeOversold: p.ExtremeOversold, extremeOverbought: p.ExtremeOverbought,
		approach: p.ApproachBand, zoneBonus: p.ZoneBonus, extremeBonus: p.ExtremeBonus,
		approachBonus: p.ApproachingBonus,
	}
	b.normalize(bands{oversold: 20, overbought: 80})
	return b
}

// Stochastic scores %K zones and %K/%D crossovers inside them
type Stochastic struct{}

func (Stochastic) ID() string       { return "stochastic" }
func (Stochastic) Name() string     { return "Stochastic Oscillator" }
func (Stochastic) Defaults() Params { return defaultsOf[stochasticParams]() }

func (Stochastic) MaxScore(params Params) float64 {
	p, _ := bind[stochasticParams](params)
	return p.Max()
}

func (Stochastic) input(p *stochasticParams) Input {
	return indicatorInput("STOCH", map[string]string{
		"fastkperiod": strconv.Itoa(period(p.FastKPeriod, 14)),
		"slowkperiod": strconv.Itoa(period(p.SlowKPeriod, 3)),
		"slowdperiod": strconv.Itoa(period(p.SlowDPeriod, 3)),
	})
}

func (d Stochastic) Inputs(params Params) []Input {
	p, _ := bind[stochasticParams](params)
	return []Input{d.input(p)}
}

func (d Stochastic) CalculateScore(data *SymbolData, params Params) contracts.DirectiveResult {
	p, notes := bind[stochasticParams](params)
	nonNegative(&p.CrossoverBonus)
	reading, res := needIndicator(d, p.Scale, data, d.input(p), "slowk", "slowd")
	if res != nil {
		return *res
	}

	k, dv := reading.Values["slowk"], reading.Values["slowd"]
	b := p.bands()

	t := newTally()
	t.note("k", k)
	t.note("d", dv)
	b.apply(t, "%K", k)

	prevK, okK := reading.Previous("slowk")
	prevD, okD := reading.Previous("slowd")
	if okK && okD {
		switch {
		case prevK <= prevD && k > dv && k < b.oversold+b.approach:
			t.add(p.CrossoverBonus, "Bullish %K/%D Crossover")
		case prevK >= prevD && k < dv && k > b.overbought-b.approach:
			t.add(-p.CrossoverBonus, "Bearish %K/%D Crossover")
		}
	}
	return t.result(d, p.Scale, notes)
}

func (Stochastic) Explain(params Params) string {
	p, _ := bind[stochasticParams](params)
	return fmt.Sprintf("Starts at 50. %s A %%K/%%D crossover near a band adds ±%.4g.", p.bands().explain("%K"), p.CrossoverBonus)
}

// ---------------------------------------------------------------- helpers

// distanceLadder scores a signed percent distance from a reference line
func distanceLadder(t *tally, dist, strong, mild, strongBonus float64, line string) {
	switch {
	case dist > strong:
		t.add(strongBonus, "Strongly Above "+line)
	case dist > 0:
		t.add(mild, "Above "+line)
	case dist < -strong:
		t.add(-strongBonus, "Strongly Below "+line)
	case dist < 0:
		t.add(-mild, "Below "+line)
	}
}

func period(v, fallback int) int {
	if v < 1 {
		return fallback
	}
	return v
}

// ascending sorts three thresholds in place
func ascending(a, b, c *float64) {
	if *a > *b {
		*a, *b = *b, *a
	}
	if *b > *c {
		*b, *c = *c, *b
	}
	if *a > *b {
		*a, *b = *b, *a
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / math.Abs(from) * 100
}

func direction(change, flat float64) int {
	switch {
	case change > flat:
		return 1
	case change < -flat:
		return -1
	}
	return 0
}
