package callcache

import (
	"net/url"
	"strings"
	"time"
)

// CanonicalParams renders params as a sorted, query-encoded string.
// Map order never changes the result.
func CanonicalParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(strings.TrimSpace(k), val)
	}
	return v.Encode()
}

// CallKey is the store key of a cached call
func CallKey(provider, endpoint string, params map[string]string) string {
	return "call:" + provider + ":" + endpoint + ":" + CanonicalParams(params)
}

func minuteKey(provider string, t time.Time) string {
	return "ledger:" + provider + ":m:" + t.UTC().Format("200601021504")
}

func dayKey(provider string, t time.Time) string {
	return "ledger:" + provider + ":d:" + t.UTC().Format("20060102")
}

// untilNextMinute and untilNextDay compute the remaining time of a UTC window
func untilNextMinute(t time.Time) time.Duration {
	t = t.UTC()
	return t.Truncate(time.Minute).Add(time.Minute).Sub(t)
}

func untilNextDay(t time.Time) time.Duration {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, 1).Sub(t)
}
