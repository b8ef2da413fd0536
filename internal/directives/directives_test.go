package directives

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradepulse/internal/contracts"
)

var testNow = time.Date(2024, 6, 28, 21, 0, 0, 0, time.UTC)

// weekdayBars builds n weekday bars ending on the last weekday on or before end
func weekdayBars(n int, end time.Time, closeAt, volumeAt func(i int, day time.Time) float64) []contracts.Bar {
	var days []time.Time
	for d := end; len(days) < n; d = d.AddDate(0, 0, -1) {
		if weekday(d) {
			days = append([]time.Time{d}, days...)
		}
	}
	bars := make([]contracts.Bar, n)
	for i, d := range days {
		c := closeAt(i, d)
		bars[i] = contracts.Bar{Date: d, Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: volumeAt(i, d)}
	}
	return bars
}

func risingBars(n int) []contracts.Bar {
	return weekdayBars(n, testNow,
		func(i int, _ time.Time) float64 { return 100 + float64(i)*0.5 },
		func(i int, _ time.Time) float64 { return 1e6 })
}

var bullishReadings = map[string]map[string]float64{
	"RSI":    {"rsi": 15, "prev_rsi": 18},
	"MACD":   {"macd": 1.2, "macd_signal": 0.8, "macd_hist": 0.4, "prev_macd_hist": -0.1},
	"ADX":    {"adx": 45},
	"CCI":    {"cci": -250},
	"EMA":    {"ema": 90, "prev_ema": 89},
	"BBANDS": {"real_upper_band": 150, "real_middle_band": 140, "real_lower_band": 130},
	"MFI":    {"mfi": 5},
	"OBV":    {"obv": 2000},
	"VWAP":   {"vwap": 90},
	"STOCH":  {"slowk": 12, "slowd": 10, "prev_slowk": 8, "prev_slowd": 9},
}

var bearishReadings = map[string]map[string]float64{
	"RSI":    {"rsi": 95, "prev_rsi": 90},
	"MACD":   {"macd": -1.2, "macd_signal": -0.8, "macd_hist": -0.4, "prev_macd_hist": 0.1},
	"ADX":    {"adx": 10},
	"CCI":    {"cci": 300},
	"EMA":    {"ema": 200, "prev_ema": 201},
	"BBANDS": {"real_upper_band": 110, "real_middle_band": 100, "real_lower_band": 90},
	"MFI":    {"mfi": 95},
	"OBV":    {"obv": 100},
	"VWAP":   {"vwap": 200},
	"STOCH":  {"slowk": 95, "slowd": 96, "prev_slowk": 97, "prev_slowd": 96},
}

func obvSeries(from, to float64) []contracts.SeriesPoint {
	out := make([]contracts.SeriesPoint, 30)
	for i := range out {
		out[i] = contracts.SeriesPoint{
			Time:  testNow.AddDate(0, 0, i-30),
			Value: from + (to-from)*float64(i)/29,
		}
	}
	return out
}

// fill satisfies every input of every directive in reg
func fill(reg *Registry, readings map[string]map[string]float64, price float64, bars []contracts.Bar) *SymbolData {
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars
	data.Quote = &contracts.Quote{Symbol: "AAPL", Price: price, AsOf: testNow, Source: "test"}
	for _, id := range reg.IDs() {
		d, _ := reg.Get(id)
		for _, in := range d.Inputs(reg.Params(id)) {
			if in.Kind != InputIndicator {
				continue
			}
			r := contracts.IndicatorReading{Symbol: "AAPL", Indicator: in.Indicator, Values: readings[in.Indicator], AsOf: testNow}
			if in.Indicator == "OBV" {
				r.Series = obvSeries(1000, r.Values["obv"])
			}
			data.Indicators[in.Key()] = r
		}
	}
	return data
}

func setIndicator(t *testing.T, data *SymbolData, d Directive, params Params, name string, values map[string]float64) {
	t.Helper()
	for _, in := range d.Inputs(params) {
		if in.Kind == InputIndicator && in.Indicator == name {
			data.Indicators[in.Key()] = contracts.IndicatorReading{Indicator: name, Values: values, AsOf: testNow}
			return
		}
	}
	t.Fatalf("%s does not read %s", d.ID(), name)
}

func TestRegistry_AllDirectivesPresent(t *testing.T) {
	reg := NewRegistry()
	want := []string{
		"adx", "advanced_weekly_rhythm", "basic_weekly_rhythm", "bollinger_bands", "cci", "ema",
		"friday_positioning", "institutional_timing", "macd", "mfi", "midweek_momentum", "momentum",
		"monday_effect", "moving_average_crossover", "obv", "rsi", "stochastic", "support_resistance",
		"technical_momentum", "trend_strength", "volatility", "volume", "volume_rhythm", "vwap",
	}
	assert.Equal(t, want, reg.IDs())
	assert.True(t, reg.IsComposite("trend_strength"))
	assert.False(t, reg.IsComposite("rsi"))

	_, ok := reg.Get("intraday_u_pattern")
	assert.False(t, ok)
}

func TestScoreBounds(t *testing.T) {
	reg := NewRegistry()
	falling := weekdayBars(200, testNow,
		func(i int, _ time.Time) float64 { return 300 - float64(i) },
		func(i int, _ time.Time) float64 {
			if i == 199 {
				return 5e6
			}
			return 1e6
		})

	cases := []struct {
		name string
		data *SymbolData
	}{
		{"empty", NewSymbolData("AAPL", testNow)},
		{"bullish", fill(reg, bullishReadings, 100, risingBars(200))},
		{"bearish", fill(reg, bearishReadings, 100, falling)},
	}

	for _, tc := range cases {
		for _, id := range reg.IDs() {
			d, _ := reg.Get(id)
			for _, params := range []Params{nil, {"max_score": 10.0}} {
				r := d.CalculateScore(tc.data, params)
				ceiling := d.MaxScore(params)
				assert.GreaterOrEqual(t, r.Score, 0.0, "%s/%s", tc.name, id)
				assert.LessOrEqual(t, r.Score, ceiling, "%s/%s", tc.name, id)
				assert.Equal(t, ceiling, r.MaxScore, "%s/%s", tc.name, id)
				assert.NotEmpty(t, r.Signal, "%s/%s", tc.name, id)
				assert.Equal(t, id, r.Directive)
				if !r.OK() {
					assert.InDelta(t, ceiling/2, r.Score, 1e-9, "%s/%s non-ok must be neutral", tc.name, id)
					assert.NotEmpty(t, r.Failure(), "%s/%s", tc.name, id)
				}
			}
		}
	}
}

func TestDefaultTolerance(t *testing.T) {
	reg := NewRegistry()
	data := fill(reg, bullishReadings, 100, risingBars(200))

	garbage := []Params{
		{"period": "abc", "oversold": true, "max_score": "huge"},
		{"oversold": 90.0, "overbought": 10.0},
		{"extreme_bonus": -50.0, "mild_bonus": []string{"x"}},
		{"lookback": -3.0, "min_observations": 0.0, "fast_period": 60.0, "slow_period": 20.0},
		{"unknown_key": 1.0},
	}
	for _, id := range reg.IDs() {
		d, _ := reg.Get(id)
		for _, params := range garbage {
			var r contracts.DirectiveResult
			require.NotPanics(t, func() { r = d.CalculateScore(data, params) }, id)
			assert.GreaterOrEqual(t, r.Score, 0.0, id)
			assert.LessOrEqual(t, r.Score, d.MaxScore(params), id)
			assert.NotEmpty(t, d.Explain(params), id)
			assert.NotEmpty(t, d.Inputs(params), id)
		}
	}
}

func TestBind(t *testing.T) {
	p, notes := bind[rsiParams](Params{"period": "21", "oversold": 25.0})
	assert.Equal(t, 21, p.Period)
	assert.Equal(t, 25.0, p.Oversold)
	assert.Empty(t, notes)

	p, notes = bind[rsiParams](Params{"period": "abc", "overbought": 75})
	assert.Equal(t, 14, p.Period)
	assert.Equal(t, 75.0, p.Overbought)
	assert.NotEmpty(t, notes)

	p, _ = bind[rsiParams](nil)
	assert.Equal(t, 100.0, p.Max())
}

func TestMaxScore_NonFinite(t *testing.T) {
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 15})

	for _, bad := range []interface{}{"NaN", "Inf", "-Inf", math.Inf(1), math.NaN(), 0.0, -5.0} {
		params := Params{"max_score": bad}
		r := RSI{}.CalculateScore(data, params)
		assert.Equal(t, 100.0, r.MaxScore, "%v", bad)
		assert.Equal(t, 100.0, r.Score, "%v", bad)
		assert.Equal(t, 100.0, RSI{}.MaxScore(params), "%v", bad)
		assert.NotEmpty(t, r.Debug["param_errors"], "%v", bad)
	}

	reg := NewRegistry(WithCompositeTable("pair", []Weighted{{"rsi", 0.5}, {"cci", 0.5}}))
	c, _ := reg.Get("pair")
	r := c.CalculateScore(data, Params{"max_score": "NaN", "cci": "Inf"})
	assert.Equal(t, 100.0, r.MaxScore)
	assert.Equal(t, 100.0, r.Score)
}

func TestMaxScore_TinyCeiling(t *testing.T) {
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 15})

	params := Params{"max_score": 0.005}
	r := RSI{}.CalculateScore(data, params)
	assert.LessOrEqual(t, r.Score, 0.005)
	assert.GreaterOrEqual(t, r.Score, 0.0)
}

func TestDefaults(t *testing.T) {
	got := RSI{}.Defaults()
	assert.Equal(t, 14, got["period"])
	assert.Equal(t, 30, got["oversold"])
	assert.Equal(t, 100, got["max_score"])
}

func TestRSI_ExtremeOversold(t *testing.T) {
	d := RSI{}
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, d, nil, "RSI", map[string]float64{"rsi": 15})

	r := d.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusOK, r.Status)
	assert.Equal(t, 100.0, r.Score)
	assert.Contains(t, r.Signal, "Extremely Oversold")
	assert.Equal(t, 105.0, r.Debug["raw_score"])
}

func TestRSI_Scaled(t *testing.T) {
	d := RSI{}
	params := Params{"max_score": 20.0}
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, d, params, "RSI", map[string]float64{"rsi": 15})

	r := d.CalculateScore(data, params)
	assert.Equal(t, 20.0, r.Score)
	assert.Equal(t, 100.0, r.Normalized())
}

func TestRSI_LadderForcedMonotonic(t *testing.T) {
	d := RSI{}
	params := Params{"oversold_bonus": 5.0, "approaching_bonus": 20.0, "extreme_oversold": 40.0}
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, d, params, "RSI", map[string]float64{"rsi": 32})

	// approaching bonus is capped at the oversold bonus
	r := d.CalculateScore(data, params)
	assert.Equal(t, 55.0, r.Score)
	assert.Contains(t, r.Signal, "Approaching Oversold")

	// extreme threshold cannot sit above the oversold threshold
	setIndicator(t, data, d, params, "RSI", map[string]float64{"rsi": 38})
	r = d.CalculateScore(data, params)
	assert.Equal(t, "Neutral", r.Signal)
	assert.Equal(t, 50.0, r.Score)
}

func TestMissingInput(t *testing.T) {
	d := MACD{}
	data := NewSymbolData("AAPL", testNow)

	r := d.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusNoData, r.Status)
	assert.Equal(t, 50.0, r.Score)
	assert.Equal(t, FailureMissingInput, r.Failure())
	assert.True(t, strings.HasPrefix(r.Signal, "No Data"))

	in := d.Inputs(nil)[0]
	data.Failures[in.Key()] = "rate limited"
	r = d.CalculateScore(data, nil)
	assert.Equal(t, FailureFetchError, r.Failure())
	assert.Contains(t, r.Reason, "rate limited")

	data.Stale[in.Key()] = true
	r = d.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusStale, r.Status)
	assert.Equal(t, FailureStaleInput, r.Failure())
}

func TestMACD_Crossover(t *testing.T) {
	d := MACD{}
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, d, nil, "MACD", map[string]float64{"macd": 0.5, "macd_hist": 0.2, "prev_macd_hist": -0.1})

	r := d.CalculateScore(data, nil)
	// 50 + crossover 25 + expanding 5 + zero line 10
	assert.Equal(t, 90.0, r.Score)
	assert.Contains(t, r.Signal, "Bullish Crossover")
}

func TestEMA_NeedsPrice(t *testing.T) {
	d := EMA{}
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, d, nil, "EMA", map[string]float64{"ema": 100})

	r := d.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusNoData, r.Status)

	data.Quote = &contracts.Quote{Price: 110}
	r = d.CalculateScore(data, nil)
	assert.Equal(t, 75.0, r.Score)
	assert.Contains(t, r.Signal, "Strongly Above EMA")
}

func TestVolume_Surge(t *testing.T) {
	bars := weekdayBars(30, testNow,
		func(i int, _ time.Time) float64 { return 100 + float64(i) },
		func(i int, _ time.Time) float64 {
			if i == 29 {
				return 3e6
			}
			return 1e6
		})
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars

	r := Volume{}.CalculateScore(data, nil)
	assert.Equal(t, 80.0, r.Score)
	assert.Contains(t, r.Signal, "Extreme Buying Volume")
}

func TestVolume_InsufficientBars(t *testing.T) {
	data := NewSymbolData("AAPL", testNow)
	data.Bars = risingBars(5)

	r := Volume{}.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusInsufficientData, r.Status)
	assert.Equal(t, 50.0, r.Score)
	assert.Equal(t, FailureTooFewPoints, r.Failure())
}

func TestMovingAverageCrossover_GoldenCross(t *testing.T) {
	bars := weekdayBars(80, testNow,
		func(i int, _ time.Time) float64 {
			if i >= 78 {
				return 100 + float64(i-77)*10
			}
			return 100
		},
		func(int, time.Time) float64 { return 1e6 })
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars

	r := MovingAverageCrossover{}.CalculateScore(data, nil)
	assert.Equal(t, 85.0, r.Score)
	assert.Contains(t, r.Signal, "Golden Cross")
}

func TestSupportResistance_Breakout(t *testing.T) {
	bars := weekdayBars(61, testNow,
		func(i int, _ time.Time) float64 {
			if i == 60 {
				return 120
			}
			return 100
		},
		func(int, time.Time) float64 { return 1e6 })
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars

	r := SupportResistance{}.CalculateScore(data, nil)
	assert.Equal(t, 80.0, r.Score)
	assert.Contains(t, r.Signal, "Breakout")
}

func TestMondayEffect_NoMondays(t *testing.T) {
	data := NewSymbolData("AAPL", testNow)
	for _, b := range risingBars(150) {
		if b.Date.Weekday() != time.Monday {
			data.Bars = append(data.Bars, b)
		}
	}

	r := MondayEffect().CalculateScore(data, nil)
	assert.Equal(t, 50.0, r.Score)
	assert.Equal(t, contracts.StatusInsufficientData, r.Status)
	assert.Equal(t, FailureTooFewPoints, r.Failure())
	assert.Contains(t, r.Signal, "Insufficient Data")
	assert.Equal(t, 0, r.Debug["observations"])
}

func TestMondayEffect_Strength(t *testing.T) {
	// Mondays gain 1%, every other session is flat
	price := 100.0
	bars := weekdayBars(121, testNow,
		func(i int, day time.Time) float64 {
			if i > 0 && day.Weekday() == time.Monday {
				price *= 1.01
			}
			return price
		},
		func(int, time.Time) float64 { return 1e6 })
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars

	r := MondayEffect().CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusOK, r.Status)
	assert.Equal(t, 75.0, r.Score)
	assert.Contains(t, r.Signal, "Strong Monday Strength")

	r = MidweekMomentum().CalculateScore(data, nil)
	assert.Less(t, r.Score, 50.0)
}

func TestTurnOfMonth(t *testing.T) {
	cases := []struct {
		day  string
		want bool
	}{
		{"2024-01-31", true},
		{"2024-01-29", true},
		{"2024-01-26", false},
		{"2024-01-15", false},
		{"2024-02-01", true},
		{"2024-02-02", true},
		{"2024-02-05", false},
	}
	for _, tc := range cases {
		d, err := time.Parse("2006-01-02", tc.day)
		require.NoError(t, err)
		assert.Equal(t, tc.want, turnOfMonth(d, 3, 2), tc.day)
	}
}

func TestInstitutionalTiming_QuarterTurn(t *testing.T) {
	price := 100.0
	bars := weekdayBars(300, testNow, func(i int, day time.Time) float64 {
		if i > 0 && turnOfMonth(day, 3, 2) {
			if isQuarterTurn(day) {
				price *= 1.015
			} else {
				price *= 1.005
			}
		}
		return price
	}, func(int, time.Time) float64 { return 1e6 })
	data := NewSymbolData("AAPL", testNow)
	data.Bars = bars

	d := InstitutionalTiming{}
	base := d.CalculateScore(data, Params{"lookback": 260, "quarter_bonus": 0.0})
	require.Equal(t, contracts.StatusOK, base.Status)
	assert.Equal(t, true, base.Debug["quarter_end"])
	assert.Equal(t, 85.0, base.Score)

	r := d.CalculateScore(data, Params{"lookback": 260})
	assert.Equal(t, 90.0, r.Score)
	assert.Contains(t, r.Signal, "Quarter-End Flow")
	assert.InDelta(t, 1.0, r.Debug["quarter_diff_pct"], 0.01)
}

func TestComposite_Renormalization(t *testing.T) {
	reg := NewRegistry(WithCompositeTable("test_mix", []Weighted{
		{"rsi", 0.3},
		{"macd", 0.4},
		{"cci", 0.3},
	}))
	c, ok := reg.Get("test_mix")
	require.True(t, ok)

	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 15}) // 100
	setIndicator(t, data, CCI{}, nil, "CCI", map[string]float64{"cci": 0})  // 50
	// macd is missing

	r := c.CalculateScore(data, nil)
	require.NotNil(t, r.Composite)
	assert.Equal(t, contracts.StatusOK, r.Status)
	assert.InDelta(t, (0.3*100+0.3*50)/0.6, r.Score, 0.01)
	assert.InDelta(t, 0.6, r.Composite.ParticipatingWeight, 1e-9)
	assert.Equal(t, "Strong Bullish", r.Signal)

	var macd contracts.ChildResult
	for _, ch := range r.Composite.Children {
		if ch.Directive == "macd" {
			macd = ch
		}
	}
	assert.False(t, macd.Included)
	assert.Equal(t, contracts.StatusNoData, macd.Status)
	assert.NotEmpty(t, macd.Reason)

	require.Len(t, r.Composite.Signals, 1)
	assert.True(t, strings.HasPrefix(r.Composite.Signals[0], "RSI: "))
}

func TestComposite_FineGrainedWeights(t *testing.T) {
	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 15}) // 100
	// cci is missing

	reg := NewRegistry(WithCompositeTable("eighths", []Weighted{{"rsi", 0.125}, {"cci", 0.875}}))
	c, _ := reg.Get("eighths")
	r := c.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusOK, r.Status)
	assert.Equal(t, 100.0, r.Score)
	assert.InDelta(t, 0.13, r.Composite.ParticipatingWeight, 1e-9)

	// a tiny weight still participates
	reg = NewRegistry(WithCompositeTable("sliver", []Weighted{{"rsi", 0.004}, {"cci", 0.996}}))
	c, _ = reg.Get("sliver")
	r = c.CalculateScore(data, nil)
	assert.Equal(t, contracts.StatusOK, r.Status)
	assert.Equal(t, 100.0, r.Score)
	assert.Empty(t, r.Failure())
}

func TestComposite_ZeroParticipation(t *testing.T) {
	reg := NewRegistry()
	c, _ := reg.Get("basic_weekly_rhythm")

	r := c.CalculateScore(NewSymbolData("AAPL", testNow), nil)
	assert.Equal(t, 50.0, r.Score)
	assert.Equal(t, contracts.StatusNoData, r.Status)
	assert.Equal(t, FailureNoChildren, r.Failure())
	require.NotNil(t, r.Composite)
	assert.Len(t, r.Composite.Children, 3)
	assert.Zero(t, r.Composite.ParticipatingWeight)
}

func TestComposite_UnknownAndNestedChildren(t *testing.T) {
	reg := NewRegistry(WithCompositeTable("odd", []Weighted{
		{"rsi", 0.5},
		{"no_such_directive", 0.25},
		{"trend_strength", 0.25},
	}))
	c, _ := reg.Get("odd")

	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 50})

	r := c.CalculateScore(data, nil)
	assert.Equal(t, 50.0, r.Score)
	assert.InDelta(t, 0.5, r.Composite.ParticipatingWeight, 1e-9)
	assert.Equal(t, "directive not registered", r.Composite.Children[1].Reason)
	assert.Equal(t, "nested composites are not supported", r.Composite.Children[2].Reason)
}

func TestComposite_WeightOverride(t *testing.T) {
	reg := NewRegistry(WithCompositeTable("pair", []Weighted{{"rsi", 0.5}, {"cci", 0.5}}))
	c, _ := reg.Get("pair")

	data := NewSymbolData("AAPL", testNow)
	setIndicator(t, data, RSI{}, nil, "RSI", map[string]float64{"rsi": 15})
	setIndicator(t, data, CCI{}, nil, "CCI", map[string]float64{"cci": 0})

	r := c.CalculateScore(data, Params{"cci": 0.0})
	assert.Equal(t, 100.0, r.Score)

	r = c.CalculateScore(data, Params{"cci": "bogus"})
	assert.Equal(t, 75.0, r.Score)
	assert.NotEmpty(t, r.Debug["param_errors"])
}

func TestComposite_InputsUnion(t *testing.T) {
	reg := NewRegistry()
	c, _ := reg.Get("trend_strength")

	kinds := map[string]Input{}
	for _, in := range c.Inputs(nil) {
		_, dup := kinds[in.Key()]
		assert.False(t, dup, in.Key())
		kinds[in.Key()] = in
	}
	// adx, ema, obv indicators plus one merged bars input plus the quote
	assert.Len(t, kinds, 5)
	assert.Equal(t, 55, kinds["bars"].Lookback)
}

func TestRegistry_Params(t *testing.T) {
	reg := NewRegistry(WithParams(map[string]Params{"rsi": {"period": 21.0}}))
	p := reg.Params("rsi")
	assert.Equal(t, 21.0, p["period"])
	p["period"] = 3.0
	assert.Equal(t, 21.0, reg.Params("rsi")["period"])
	assert.Nil(t, reg.Params("macd"))

	in := RSI{}.Inputs(reg.Params("rsi"))
	assert.Equal(t, "21", in[0].Params["time_period"])
}
