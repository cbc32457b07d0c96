// Package sqlite provides a cache.Store persisted in a SQLite file, for
// single-node deployments without Redis.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/giftrouter/pkg/cache"
)

// Cache is a key/value store with per-row expiry backed by SQLite.
type Cache struct {
	db  *sql.DB
	now func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, now: time.Now, done: make(chan struct{})}, nil
}

// PurgeEvery starts a goroutine that deletes expired rows at the given
// interval until Close. Call it at most once.
func (c *Cache) PurgeEvery(interval time.Duration, onPurge func(n int64, err error)) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				n, err := c.PurgeExpired(context.Background())
				if onPurge != nil {
					onPurge(n, err)
				}
			}
		}
	}()
}

// Get retrieves a value. Returns (nil, false, nil) if not found or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	if c.now().UnixNano() > expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value, replacing any existing row for key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key, value, now.UTC(), now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at < ?`, c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of live entries.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE expires_at >= ?`, c.now().UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// Close stops the purge goroutine and releases the database connection.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return c.db.Close()
}

var _ cache.Store = (*Cache)(nil)
