package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/enrollment-engine/cache"
)

// KV implements cache.Store on the kv_entries table. Patterns are SQLite
// GLOB expressions, so '*' and '?' behave as in cache.Memory.
type KV struct {
	store *Store
	now   func() time.Time
}

var (
	_ cache.Store   = (*KV)(nil)
	_ cache.Sweeper = (*KV)(nil)
)

// WithClock replaces the clock used for expiry. Intended for tests.
func (kv *KV) WithClock(now func() time.Time) *KV {
	kv.now = now
	return kv
}

func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	kv.store.mu.RLock()
	defer kv.store.mu.RUnlock()

	var value string
	err := kv.store.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, kv.now().UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (kv *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	kv.store.mu.Lock()
	defer kv.store.mu.Unlock()

	_, err := kv.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
	`, key, value, kv.expiry(ttl))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (kv *KV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	kv.store.mu.Lock()
	defer kv.store.mu.Unlock()

	if _, err := kv.store.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Keys returns live keys matching the GLOB pattern, sorted.
func (kv *KV) Keys(ctx context.Context, pattern string) ([]string, error) {
	kv.store.mu.RLock()
	defer kv.store.mu.RUnlock()

	rows, err := kv.store.db.QueryContext(ctx, `
		SELECT key FROM kv_entries
		WHERE key GLOB ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, pattern, kv.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SetNX inserts key unless a live entry exists. An expired entry is replaced.
func (kv *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	kv.store.mu.Lock()
	defer kv.store.mu.Unlock()

	res, err := kv.store.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= ?
	`, key, value, kv.expiry(ttl), kv.now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to setnx %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to setnx %s: %w", key, err)
	}
	return n == 1, nil
}

// Sweep deletes expired entries.
func (kv *KV) Sweep(ctx context.Context) (int, error) {
	kv.store.mu.Lock()
	defer kv.store.mu.Unlock()

	res, err := kv.store.db.ExecContext(ctx, `
		DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, kv.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep kv entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (kv *KV) expiry(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: kv.now().Add(ttl).UnixNano(), Valid: true}
}
