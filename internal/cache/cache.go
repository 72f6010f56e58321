// Package cache provides a TTL'd key-value layer over a sqlite-backed
// table, keyed by opaque strings, per §4.2. It is best-effort: a backing
// store outage degrades the caller to a direct origin read rather than
// failing the request.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tao-treasury/internal/metrics"
)

// Store is a sqlite-backed TTL cache. Values are msgpack-encoded blobs so
// callers can cache arbitrary structs without a bespoke schema per key
// shape, the same role teacher's clientdata.Repository plays for API
// response caching.
type Store struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Registry
}

// New wraps an already-open sqlite connection as a Store. The caller is
// responsible for running the schema migration that creates the cache_kv
// table (internal/datastore/schema).
func New(db *sql.DB, m *metrics.Registry, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "cache").Logger(), metrics: m}
}

// Get returns the raw cached bytes for key, and whether it was found and
// still fresh. Backing-store errors are logged and treated as a miss so
// callers fall back to origin instead of failing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_kv WHERE key = ?`, key)
	err := row.Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.IncCounter("cache_miss", key)
		return nil, false, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache backing store read failed, degrading to origin")
		s.metrics.IncCounter("cache_error", key)
		return nil, false, nil
	}
	if time.Now().Unix() > expiresAt {
		s.metrics.IncCounter("cache_miss", key)
		return nil, false, nil
	}
	s.metrics.IncCounter("cache_hit", key)
	return value, true, nil
}

// GetValue decodes the cached msgpack blob for key into out.
func (s *Store) GetValue(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("cache: decode value for key %q: %w", key, err)
	}
	return true, nil
}

// Set stores raw bytes under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache backing store write failed")
		return nil // best-effort: never fail the caller on a cache write error
	}
	return nil
}

// SetValue msgpack-encodes value and stores it under key.
func (s *Store) SetValue(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value for key %q: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

// Delete removes key, if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_kv WHERE key = ?`, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache backing store delete failed")
	}
	return nil
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(ctx context.Context, key string) bool {
	_, ok, _ := s.Get(ctx, key)
	return ok
}

// GetOrSet returns the cached value for key if fresh, otherwise calls
// factory, stores its result, and returns it.
func (s *Store) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory func() (interface{}, error), out interface{}) error {
	if ok, err := s.GetValue(ctx, key, out); err == nil && ok {
		return nil
	}
	value, err := factory()
	if err != nil {
		return err
	}
	if err := s.SetValue(ctx, key, value, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to populate cache after factory call")
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: re-encode factory value for key %q: %w", key, err)
	}
	return msgpack.Unmarshal(raw, out)
}
