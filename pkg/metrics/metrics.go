// Package metrics exposes giftrouter's Prometheus instruments.
//
// A nil *Recorder is valid and records nothing, so components can be built
// without a registry in tests and in CLI commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the counters and histograms giftrouter updates.
type Recorder struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheWrites     *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptLatency  *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	cost            *prometheus.CounterVec
	tiers           *prometheus.CounterVec
}

// New registers the giftrouter instruments on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "giftrouter_http_request_duration_seconds",
				Help: "HTTP request duration in seconds",
			},
			[]string{"method", "endpoint"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_cache_lookups_total",
				Help: "Cache lookups by outcome (hit, miss, error)",
			},
			[]string{"outcome"},
		),
		cacheWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_cache_writes_total",
				Help: "Cache writes by outcome (ok, error)",
			},
			[]string{"outcome"},
		),
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_provider_attempts_total",
				Help: "Provider attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		attemptLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "giftrouter_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		tokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_tokens_total",
				Help: "Tokens consumed by provider and direction",
			},
			[]string{"provider", "direction"},
		),
		cost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_cost_usd_total",
				Help: "Accumulated provider cost in USD",
			},
			[]string{"provider"},
		),
		tiers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftrouter_classified_requests_total",
				Help: "Requests by complexity tier",
			},
			[]string{"tier"},
		),
	}
}

// HTTPRequest records one served HTTP request.
func (r *Recorder) HTTPRequest(method, endpoint, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, endpoint, status).Inc()
	r.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// CacheLookup records a lookup outcome: "hit", "miss" or "error".
func (r *Recorder) CacheLookup(outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

// CacheWrite records a cache write.
func (r *Recorder) CacheWrite(ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.cacheWrites.WithLabelValues(outcome).Inc()
}

// Attempt records a provider attempt.
func (r *Recorder) Attempt(provider string, success bool, latency time.Duration, in, out int64, cost float64) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.attempts.WithLabelValues(provider, result).Inc()
	r.attemptLatency.WithLabelValues(provider).Observe(latency.Seconds())
	if in > 0 {
		r.tokens.WithLabelValues(provider, "input").Add(float64(in))
	}
	if out > 0 {
		r.tokens.WithLabelValues(provider, "output").Add(float64(out))
	}
	if cost > 0 {
		r.cost.WithLabelValues(provider).Add(cost)
	}
}

// Tier records a classification result.
func (r *Recorder) Tier(tier string) {
	if r == nil {
		return
	}
	r.tiers.WithLabelValues(tier).Inc()
}
