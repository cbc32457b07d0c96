package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// Options configures a Manager.
type Options struct {
	TTL       time.Duration
	OpTimeout time.Duration
	Logger    zerolog.Logger
	Metrics   *metrics.Recorder
	// Now overrides the clock used for TTL checks.
	Now func() time.Time
}

// Manager looks up and stores recommendations in a Store.
// A Manager built with a nil Store is disabled: lookups report absent and
// are not counted.
type Manager struct {
	store     Store
	ttl       time.Duration
	opTimeout time.Duration
	log       zerolog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time

	mu       sync.Mutex
	hits     int64
	misses   int64
	errors   int64
	lastHit  time.Time
	lastMiss time.Time
}

// NewManager creates a Manager over store. store may be nil.
func NewManager(store Store, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:     store,
		ttl:       opts.TTL,
		opTimeout: opts.OpTimeout,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Enabled reports whether the manager has a store.
func (m *Manager) Enabled() bool { return m.store != nil }

// Lookup returns the cached entry for req. Store failures, corrupt entries
// and expired entries all count as misses and are never returned.
func (m *Manager) Lookup(ctx context.Context, req models.Request) (*models.CacheEntry, bool) {
	if m.store == nil {
		return nil, false
	}
	key := Key(req)

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	data, ok, err := m.store.Get(opCtx, key)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key[:12]).Msg("cache lookup failed")
		m.recordMiss(true)
		return nil, false
	}
	if !ok {
		m.recordMiss(false)
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		m.log.Warn().Err(err).Str("key", key[:12]).Msg("corrupt cache entry")
		m.recordMiss(true)
		return nil, false
	}
	if entry.Expired(m.now()) {
		m.recordMiss(false)
		return nil, false
	}

	m.recordHit()
	return &entry, true
}

// Store saves rec under the key of req. It reports whether the write
// succeeded; failures are logged and absorbed.
func (m *Manager) Store(ctx context.Context, req models.Request, rec models.Recommendation) bool {
	if m.store == nil {
		return false
	}
	key := Key(req)

	rec.Cached = false
	rec.CachedAt = nil
	entry := models.CacheEntry{
		Payload:  rec,
		Provider: rec.LLMUsed,
		StoredAt: m.now().UTC(),
		TTL:      m.ttl,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		m.log.Warn().Err(err).Msg("encode cache entry")
		m.recordWriteError()
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.store.Set(opCtx, key, data, m.ttl); err != nil {
		m.log.Warn().Err(err).Str("key", key[:12]).Msg("cache store failed")
		m.recordWriteError()
		return false
	}
	m.metrics.CacheWrite(true)
	m.log.Debug().Str("key", key[:12]).Str("provider", rec.LLMUsed).Msg("cached recommendation")
	return true
}

// Invalidate removes the entry for req.
func (m *Manager) Invalidate(ctx context.Context, req models.Request) error {
	if m.store == nil {
		return ErrCacheDisabled
	}
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.store.Delete(opCtx, Key(req)); err != nil {
		return fmt.Errorf("invalidate: %w: %w", ErrAdminOperationFailed, err)
	}
	return nil
}

// Clear removes every entry in the cache namespace.
func (m *Manager) Clear(ctx context.Context) error {
	if m.store == nil {
		return ErrCacheDisabled
	}
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w: %w", ErrAdminOperationFailed, err)
	}
	m.log.Info().Msg("cache cleared")
	return nil
}

// Stats returns the hit/miss counters.
func (m *Manager) Stats() models.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := models.CacheStats{
		Enabled: m.store != nil,
		Hits:    m.hits,
		Misses:  m.misses,
		Errors:  m.errors,
		TTLDays: int(m.ttl.Hours() / 24),
	}
	if total := m.hits + m.misses; total > 0 {
		st.HitRate = float64(m.hits) / float64(total)
	}
	if !m.lastHit.IsZero() {
		t := m.lastHit
		st.LastHit = &t
	}
	if !m.lastMiss.IsZero() {
		t := m.lastMiss
		st.LastMiss = &t
	}
	return st
}

// ResetStats zeroes the hit/miss counters.
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits, m.misses, m.errors = 0, 0, 0
	m.lastHit, m.lastMiss = time.Time{}, time.Time{}
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

// Health describes the store's reachability.
type Health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health pings the store.
func (m *Manager) Health(ctx context.Context) Health {
	if m.store == nil {
		return Health{Status: StatusDisabled}
	}
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.store.Ping(opCtx); err != nil {
		return Health{Status: StatusUnhealthy, Error: errors.Join(ErrCacheUnavailable, err).Error()}
	}
	return Health{Status: StatusHealthy}
}

// Close releases the store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

func (m *Manager) recordHit() {
	m.mu.Lock()
	m.hits++
	m.lastHit = m.now()
	m.mu.Unlock()
	m.metrics.CacheLookup("hit")
}

func (m *Manager) recordMiss(failed bool) {
	m.mu.Lock()
	m.misses++
	m.lastMiss = m.now()
	if failed {
		m.errors++
	}
	m.mu.Unlock()
	if failed {
		m.metrics.CacheLookup("error")
	} else {
		m.metrics.CacheLookup("miss")
	}
}

func (m *Manager) recordWriteError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
	m.metrics.CacheWrite(false)
}
