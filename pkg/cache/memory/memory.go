// Package memory provides an in-process cache.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pario-ai/giftrouter/pkg/cache"
)

// Store is an in-memory cache.Store. Entries expire lazily on read.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get retrieves a value. Returns (nil, false, nil) on miss or expiry.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if now := s.now(); now.After(e.expiresAt) {
		s.mu.Lock()
		// A Set may have landed between the two locks.
		if cur, ok := s.entries[key]; ok && now.After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value for ttl. A non-positive ttl stores nothing.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	s.entries[key] = entry{value: buf, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes key. Idempotent.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Clear drops every entry.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ cache.Store = (*Store)(nil)
