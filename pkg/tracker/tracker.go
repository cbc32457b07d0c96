// Package tracker accumulates per-provider usage and cost for the lifetime
// of the process.
package tracker

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// Sink receives every recorded attempt after the in-memory update, for
// example to persist it.
type Sink interface {
	Append(ctx context.Context, a models.Attempt) error
}

// Options configures a Tracker.
type Options struct {
	Sink    Sink
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Tracker records provider attempts and prices them from a static table.
// It is safe for concurrent use.
type Tracker struct {
	pricing map[string]models.Pricing
	sink    Sink
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	usage map[string]models.ProviderUsage
	since time.Time
}

// New creates a Tracker with the given price table.
func New(pricing map[string]models.Pricing, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		pricing: maps.Clone(pricing),
		sink:    opts.Sink,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     opts.Now,
		usage:   make(map[string]models.ProviderUsage),
		since:   opts.Now().UTC(),
	}
}

// Cost prices the given token counts for provider. Unknown providers cost
// nothing.
func (t *Tracker) Cost(provider string, in, out int) float64 {
	return t.pricing[provider].Cost(in, out)
}

// Record adds one attempt to the aggregate and returns it with CostUSD and
// CreatedAt filled in. Failed attempts are counted but never priced.
func (t *Tracker) Record(ctx context.Context, a models.Attempt) models.Attempt {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now().UTC()
	}
	if a.Success {
		a.CostUSD = t.Cost(a.Provider, a.InputTokens, a.OutputTokens)
	} else {
		a.InputTokens, a.OutputTokens, a.CostUSD = 0, 0, 0
	}

	t.mu.Lock()
	u := t.usage[a.Provider]
	u.Attempts++
	if a.Success {
		u.Successes++
		u.InputTokens += int64(a.InputTokens)
		u.OutputTokens += int64(a.OutputTokens)
		u.Cost += a.CostUSD
	} else {
		u.Failures++
	}
	t.usage[a.Provider] = u
	t.mu.Unlock()

	t.metrics.Attempt(a.Provider, a.Success, a.Latency, int64(a.InputTokens), int64(a.OutputTokens), a.CostUSD)

	if t.sink != nil {
		if err := t.sink.Append(ctx, a); err != nil {
			t.log.Warn().Err(err).Str("provider", a.Provider).Msg("ledger append failed")
		}
	}
	return a
}

// Snapshot returns a copy of the current aggregate. Cache stats are left
// for the caller to fill in.
func (t *Tracker) Snapshot() models.UsageStats {
	t.mu.Lock()
	providers := maps.Clone(t.usage)
	since := t.since
	t.mu.Unlock()

	st := models.UsageStats{
		Providers: providers,
		Since:     since,
	}
	for _, u := range providers {
		st.TotalRequests += u.Successes
		st.TotalAttempts += u.Attempts
		st.TotalCost += u.Cost
	}
	for name, u := range providers {
		if st.TotalRequests > 0 {
			u.Percentage = float64(u.Successes) / float64(st.TotalRequests) * 100
		}
		providers[name] = u
	}
	if st.TotalRequests > 0 {
		st.AvgCostPerRequest = st.TotalCost / float64(st.TotalRequests)
	}
	return st
}

// Reset clears the aggregate.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = make(map[string]models.ProviderUsage)
	t.since = t.now().UTC()
}
