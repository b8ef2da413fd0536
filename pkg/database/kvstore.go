package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/tradepulse/pkg/kvstore"
)

// kvSchema is applied by EnsureSchema. expires_at NULL means no expiry.
const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS kv_store_expires_at_idx ON kv_store (expires_at);
`

// KVStore implements kvstore.Store on a PostgreSQL table
// ⭐ SSOT: Postgres 기반 캐시/레저 저장은 여기서만
type KVStore struct {
	db  *DB
	now func() time.Time
}

// NewKVStore creates a store on the given pool
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// EnsureSchema creates the kv_store table if needed
func (s *KVStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, kvSchema); err != nil {
		return fmt.Errorf("failed to create kv_store: %w", err)
	}
	return nil
}

func (s *KVStore) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl)
	return &t
}

// Get retrieves a live value
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.Pool.QueryRow(ctx, `
		SELECT value FROM kv_store
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, s.now()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a value with TTL
func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, s.expiry(ttl))
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Incr increments a counter in a single statement. An expired row restarts at 1
// and takes the new TTL; a live row keeps its original expiry.
func (s *KVStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	var raw []byte
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO kv_store (key, value, expires_at) VALUES ($1, '1'::bytea, $2)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE
				WHEN kv_store.expires_at IS NOT NULL AND kv_store.expires_at <= $3 THEN '1'::bytea
				ELSE convert_to((convert_from(kv_store.value, 'UTF8')::bigint + 1)::text, 'UTF8')
			END,
			expires_at = CASE
				WHEN kv_store.expires_at IS NOT NULL AND kv_store.expires_at <= $3 THEN EXCLUDED.expires_at
				ELSE kv_store.expires_at
			END
		RETURNING value
	`, key, s.expiry(ttl), now).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("kv incr %s: %w", key, err)
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kv incr %s: %w", key, err)
	}
	return count, nil
}

// Purge deletes expired rows
func (s *KVStore) Purge(ctx context.Context) (int, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, s.now())
	if err != nil {
		return 0, fmt.Errorf("kv purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Health reports the pool's health
func (s *KVStore) Health(ctx context.Context) kvstore.Health {
	return s.db.Health(ctx)
}

// Close closes the pool
func (s *KVStore) Close() error {
	s.db.Close()
	return nil
}

var _ kvstore.Store = (*KVStore)(nil)
