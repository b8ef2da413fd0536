package kvstore

import (
	"context"
	"time"
)

// Store is the persistent key-value contract used by the call cache and the rate ledger.
// ⭐ SSOT: 캐시/레저 저장소 인터페이스는 여기서만 정의
//
// Values are opaque bytes. Counters created by Incr are stored as base-10 text so that
// Get on a counter key returns e.g. "3".
type Store interface {
	// Get returns the value and whether it exists (expired keys do not exist).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with a physical expiry. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments a counter and returns the new value.
	// ttl is applied only when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Purge removes expired entries and reports how many were dropped.
	// Backends with native expiry return 0.
	Purge(ctx context.Context) (int, error)

	// Health probes the backend. It never fails; problems are reported in the result.
	Health(ctx context.Context) Health

	Close() error
}

// Health is a store's answer to a liveness probe
type Health struct {
	Backend   string                 `json:"backend"`
	Healthy   bool                   `json:"healthy"`
	LatencyMs float64                `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}
