package models

import "time"

// CacheEntry stores a recommendation together with its expiry metadata.
type CacheEntry struct {
	Payload  Recommendation `json:"payload"`
	Provider string         `json:"provider"`
	StoredAt time.Time      `json:"stored_at"`
	TTL      time.Duration  `json:"ttl"`
}

// Expired reports whether the entry is dead at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Enabled  bool       `json:"enabled"`
	Hits     int64      `json:"hits"`
	Misses   int64      `json:"misses"`
	Errors   int64      `json:"errors"`
	HitRate  float64    `json:"hit_rate"`
	LastHit  *time.Time `json:"last_hit,omitempty"`
	LastMiss *time.Time `json:"last_miss,omitempty"`
	TTLDays  int        `json:"ttl_days"`
}
