package indicators

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/tradepulse/internal/contracts"
)

// ErrMalformed marks a payload that passed the client but could not be read
var ErrMalformed = errors.New("malformed payload")

// maxSeries is how many recent primary values a reading keeps
const maxSeries = 30

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrMalformed, s)
}

// fieldName normalizes a provider field label: "Real Upper Band" -> "real_upper_band"
func fieldName(label string) string {
	label = strings.TrimSpace(label)
	// "4. close" style prefixes
	if i := strings.Index(label, ". "); i > 0 && i <= 3 {
		if _, err := strconv.Atoi(label[:i]); err == nil {
			label = label[i+2:]
		}
	}
	return strings.ToLower(strings.ReplaceAll(label, " ", "_"))
}

type datedEntry struct {
	at     time.Time
	fields map[string]string
}

// datedEntries decodes a date-keyed object and orders it newest first.
// The newest entry is the max date key, not necessarily today.
func datedEntries(raw json.RawMessage) ([]datedEntry, error) {
	var byDate map[string]map[string]string
	if err := json.Unmarshal(raw, &byDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	entries := make([]datedEntry, 0, len(byDate))
	for k, fields := range byDate {
		at, err := parseDate(k)
		if err != nil {
			return nil, err
		}
		entries = append(entries, datedEntry{at: at, fields: fields})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no dated entries", ErrMalformed)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	return entries, nil
}

func numericFields(fields map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(fields))
	for label, s := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrMalformed, label, err)
		}
		out[fieldName(label)] = v
	}
	return out, nil
}

// section finds the top-level object whose key starts with prefix
func section(body []byte, prefix string) (json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for k, v := range top {
		if strings.HasPrefix(k, prefix) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: missing %q section", ErrMalformed, prefix)
}

// parseTechnical reads a "Technical Analysis: <X>" response
func parseTechnical(symbol string, def Definition, body []byte) (contracts.IndicatorReading, error) {
	raw, err := section(body, "Technical Analysis")
	if err != nil {
		return contracts.IndicatorReading{}, err
	}

	entries, err := datedEntries(raw)
	if err != nil {
		return contracts.IndicatorReading{}, err
	}

	latest, err := numericFields(entries[0].fields)
	if err != nil {
		return contracts.IndicatorReading{}, err
	}
	if _, ok := latest[def.Primary]; !ok {
		return contracts.IndicatorReading{}, fmt.Errorf("%w: %s has no %q field", ErrMalformed, def.Name, def.Primary)
	}

	values := make(map[string]float64, len(latest)*2)
	for k, v := range latest {
		values[k] = v
	}
	if len(entries) > 1 {
		if prev, err := numericFields(entries[1].fields); err == nil {
			for k, v := range prev {
				values["prev_"+k] = v
			}
		}
	}

	n := len(entries)
	if n > maxSeries {
		n = maxSeries
	}
	series := make([]contracts.SeriesPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		fields, err := numericFields(entries[i].fields)
		if err != nil {
			continue
		}
		if v, ok := fields[def.Primary]; ok {
			series = append(series, contracts.SeriesPoint{Time: entries[i].at, Value: v})
		}
	}

	return contracts.IndicatorReading{
		Symbol:    symbol,
		Indicator: def.Name,
		Values:    values,
		Series:    series,
		AsOf:      entries[0].at,
	}, nil
}

// parseDailySeries reads a TIME_SERIES_DAILY response, oldest first
func parseDailySeries(body []byte) ([]contracts.Bar, error) {
	raw, err := section(body, "Time Series")
	if err != nil {
		return nil, err
	}

	entries, err := datedEntries(raw)
	if err != nil {
		return nil, err
	}

	bars := make([]contracts.Bar, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		f, err := numericFields(entries[i].fields)
		if err != nil {
			return nil, err
		}
		bars = append(bars, contracts.Bar{
			Date:   entries[i].at,
			Open:   f["open"],
			High:   f["high"],
			Low:    f["low"],
			Close:  f["close"],
			Volume: f["volume"],
		})
	}
	return bars, nil
}

// parseGlobalQuote reads a GLOBAL_QUOTE response
func parseGlobalQuote(symbol string, body []byte) (contracts.Quote, error) {
	raw, err := section(body, "Global Quote")
	if err != nil {
		return contracts.Quote{}, err
	}

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return contracts.Quote{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var q contracts.Quote
	q.Symbol = symbol
	for label, s := range fields {
		switch fieldName(label) {
		case "price":
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return contracts.Quote{}, fmt.Errorf("%w: price %q", ErrMalformed, s)
			}
			q.Price = v
		case "latest_trading_day":
			if at, err := parseDate(s); err == nil {
				q.AsOf = at
			}
		}
	}
	if q.Price <= 0 {
		return contracts.Quote{}, fmt.Errorf("%w: no price for %s", ErrMalformed, symbol)
	}
	return q, nil
}
