package callcache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited matches every *RateLimitedError
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownProvider is returned for calls against a provider missing from the catalog
	ErrUnknownProvider = errors.New("unknown provider")
)

// RateLimitedError reports an exhausted provider quota. The fetch was not attempted.
type RateLimitedError struct {
	Provider   string
	Window     string // "minute" or "day"
	Count      int64  // calls counted plus in flight
	Quota      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: %s quota exhausted (%d/%d), retry in %s",
		e.Provider, e.Window, e.Count, e.Quota, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) true
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// FetchKind classifies a provider failure
type FetchKind string

const (
	KindTransport FetchKind = "transport" // network, DNS, timeout
	KindHTTP      FetchKind = "http"      // non-2xx status
	KindMalformed FetchKind = "malformed" // body could not be used
	KindThrottled FetchKind = "throttled" // provider said slow down
)

// FetchError is a provider-side failure. Reached tells the ledger whether the
// call was answered by the provider and therefore spent quota.
type FetchError struct {
	Provider   string
	Kind       FetchKind
	StatusCode int
	Reached    bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports a local quota rejection or a provider throttling answer
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindThrottled
}

// reached reports whether a failed fetch still spent provider quota
func reached(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Reached
}
