package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/tradepulse/pkg/kvstore"
)

// incrScript increments a counter and sets its expiry only on creation, atomically,
// so a window counter can never be left without a TTL.
var incrScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl_ms = tonumber(ARGV[1])

	local count = redis.call('INCR', key)
	if count == 1 and ttl_ms > 0 then
		redis.call('PEXPIRE', key, ttl_ms)
	end
	return count
`)

// Store implements kvstore.Store on Redis with native key expiry
// ⭐ SSOT: Redis 기반 캐시/레저 저장은 여기서만
type Store struct {
	client *Client
}

// NewStore creates a Redis-backed store under the client's prefix
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) fullKey(key string) string {
	return fullKey(s.client.prefix, key)
}

func fullKey(prefix, key string) string {
	return fmt.Sprintf("%s:kv:%s", prefix, key)
}

// Get retrieves a value
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores a value with TTL
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, s.fullKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Incr increments a counter, applying ttl on creation
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrScript.Run(ctx, s.client.rdb, []string{s.fullKey(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return count, nil
}

// Purge is a no-op: Redis expires keys natively
func (s *Store) Purge(context.Context) (int, error) {
	return 0, nil
}

// Health pings the server and reports connection pool counters
func (s *Store) Health(ctx context.Context) kvstore.Health {
	h := kvstore.Health{Backend: "redis"}
	start := time.Now()
	err := s.client.rdb.Ping(ctx).Err()
	h.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Healthy = true

	if stats := s.client.rdb.PoolStats(); stats != nil {
		h.Detail = map[string]interface{}{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"timeouts":    stats.Timeouts,
		}
	}
	return h
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

var _ kvstore.Store = (*Store)(nil)
