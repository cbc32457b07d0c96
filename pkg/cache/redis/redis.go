// Package redis provides a cache.Store backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pario-ai/giftrouter/pkg/cache"
)

// ErrNoPrefix is returned by Clear when the store has no key prefix, since
// the scan would match every key in the database.
var ErrNoPrefix = errors.New("redis: refusing to clear without a key prefix")

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; Clear only removes keys under it.
	Prefix string
	// Timeout bounds dialing and each socket read or write.
	Timeout time.Duration
}

// Store is a cache.Store on top of a go-redis client.
type Store struct {
	client *goredis.Client
	prefix string
}

// New creates a Store. The connection is established lazily, so an
// unreachable server is reported by Ping rather than here.
func New(opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		MaxRetries:   1,
	})
	return &Store{client: client, prefix: opts.Prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

// Get returns the value for key. redis.Nil is reported as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value with a server-side expiry of ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix using SCAN, so the server is
// never blocked by a KEYS call.
func (s *Store) Clear(ctx context.Context) error {
	if s.prefix == "" {
		return ErrNoPrefix
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ cache.Store = (*Store)(nil)
