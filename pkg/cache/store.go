// Package cache implements the recommendation response cache: deterministic
// request keys, a TTL-enforcing manager with hit/miss accounting, and the
// Store contract that concrete backends (redis, sqlite, memory) satisfy.
//
// The manager degrades instead of failing: per-request lookups and writes
// never return store errors to the caller. Only administrative operations
// (Clear, Invalidate) surface failures.
package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	// ErrCacheUnavailable marks a store that could not be reached. It is
	// absorbed on the request path.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrAdminOperationFailed wraps failures of operator-initiated actions.
	ErrAdminOperationFailed = errors.New("admin operation failed")
	// ErrCacheDisabled is returned by administrative calls when caching is off.
	ErrCacheDisabled = errors.New("cache disabled")
)

// Store is a key/value store with per-key expiry.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get returns (nil, false, nil) on a miss or an expired key; a non-nil
//     error means the store itself could not answer.
//   - Clear removes every key owned by the store (its namespace), not the
//     whole backing database.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Clear(ctx context.Context) error
	Close() error
}
