package contracts

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV observation
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Return is the close-to-close return from prev to b
func (b Bar) Return(prev Bar) (float64, bool) {
	if prev.Close <= 0 {
		return 0, false
	}
	return (b.Close - prev.Close) / prev.Close, true
}

// SortBars orders bars oldest first
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// Closes returns the close prices in order
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Quote is the latest known price of a symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	AsOf   time.Time `json:"as_of"`
	Source string    `json:"source"` // realtime, alpha_vantage, bars
}

// SeriesPoint is one dated value of an indicator's primary field
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// IndicatorReading is the canonical form of a technical indicator response.
// Values holds the latest entry's fields plus prev_<field> for the entry before it.
// ⭐ SSOT: 지표 데이터는 이 형태로만 디렉티브에 전달
type IndicatorReading struct {
	Symbol    string             `json:"symbol"`
	Indicator string             `json:"indicator"`
	Values    map[string]float64 `json:"values"`
	Series    []SeriesPoint      `json:"series,omitempty"` // oldest first
	AsOf      time.Time          `json:"as_of"`
	Source    string             `json:"source"`
}

// Value returns a named field
func (r IndicatorReading) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Previous returns the named field of the entry before the latest
func (r IndicatorReading) Previous(field string) (float64, bool) {
	v, ok := r.Values["prev_"+field]
	return v, ok
}
