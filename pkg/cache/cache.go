// Package cache stores synthesized speech payloads keyed by request.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"navvoice/pkg/db"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// SQLiteCache implements Cacher using pkg/db. Entries older than the TTL
// count as misses and are removed by Prune.
type SQLiteCache struct {
	db  *db.DB
	ttl time.Duration
}

// NewSQLiteCache creates a new cache. A zero ttl keeps entries forever.
func NewSQLiteCache(d *db.DB, ttl time.Duration) *SQLiteCache {
	return &SQLiteCache{db: d, ttl: ttl}
}

func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	query := "SELECT value FROM cache WHERE key = ?"
	args := []any{key}
	if c.ttl > 0 {
		query += " AND created_at >= ?"
		args = append(args, time.Now().Add(-c.ttl).UTC().Format(db.TimeFormat))
	}

	var val []byte
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache: Lookup failed", "key", key, "error", err)
		return nil, false
	}
	if len(val) == 0 {
		return nil, false
	}
	return val, true
}

func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte) error {
	query := `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err := c.db.ExecContext(ctx, query, key, val, db.Now())
	return err
}

// Prune deletes expired entries and returns how many were removed.
func (c *SQLiteCache) Prune() (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	return c.db.PruneCache(c.ttl)
}
