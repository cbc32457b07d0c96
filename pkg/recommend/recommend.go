// Package recommend serves gift recommendations: cache first, then the
// classifier picks a tier, the router picks and invokes a provider, and the
// fresh result is cached.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/provider"
	"github.com/pario-ai/giftrouter/pkg/router"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

// MaxQueryLength bounds the query in runes.
const MaxQueryLength = 2000

// Reason names why a request could not be served.
type Reason string

const (
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonUnknownProvider     Reason = "unknown_provider"
	ReasonUpstreamUnavailable Reason = "upstream_unavailable"
	ReasonCancelled           Reason = "cancelled"
)

// Failure is the terminal error of Recommend.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ReasonOf returns the failure reason carried by err, or "" if none.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

// Options configures a Service.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
	// NewID generates request IDs. Defaults to random UUIDs.
	NewID func() string
}

// Service orchestrates one recommendation per call. It is safe for
// concurrent use.
type Service struct {
	cache      *cache.Manager
	classifier *classifier.Classifier
	router     *router.Router
	tracker    *tracker.Tracker
	registry   *provider.Registry
	log        zerolog.Logger
	metrics    *metrics.Recorder
	now        func() time.Time
	newID      func() string

	flights singleflight.Group
}

// New wires a Service from its components.
func New(cm *cache.Manager, cl *classifier.Classifier, rt *router.Router, tr *tracker.Tracker, reg *provider.Registry, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		cache:      cm,
		classifier: cl,
		router:     rt,
		tracker:    tr,
		registry:   reg,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		newID:      opts.NewID,
	}
}

// Recommend serves req from the cache or a provider.
//
// Identical concurrent misses share one provider call. The shared call runs
// detached from the caller: a caller that goes away gets a cancelled
// failure while the call still completes, is recorded and is cached.
func (s *Service) Recommend(ctx context.Context, req models.Request) (*models.Recommendation, error) {
	if err := validate(req); err != nil {
		return nil, &Failure{Reason: ReasonInvalidRequest, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Reason: ReasonCancelled, Err: err}
	}

	if entry, ok := s.cache.Lookup(ctx, req); ok {
		rec := entry.Payload
		storedAt := entry.StoredAt
		rec.RequestID = s.newID()
		rec.Cached = true
		rec.CachedAt = &storedAt
		rec.CostUSD = 0
		rec.Fallback = false
		s.log.Debug().Str("request_id", rec.RequestID).Str("provider", entry.Provider).Msg("cache hit")
		return &rec, nil
	}

	flightKey := cache.Key(req) + "|" + req.ForceProvider
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(flightKey, func() (any, error) {
		return s.serve(detached, req)
	})

	select {
	case <-ctx.Done():
		return nil, &Failure{Reason: ReasonCancelled, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec := *res.Val.(*models.Recommendation)
		if res.Shared {
			rec.RequestID = s.newID()
		}
		return &rec, nil
	}
}

func (s *Service) serve(ctx context.Context, req models.Request) (*models.Recommendation, error) {
	var tier models.Tier
	if req.ForceProvider == "" {
		tier = s.classifier.Classify(req)
		s.metrics.Tier(string(tier))
	}

	name, err := s.router.Route(tier, req.ForceProvider)
	if err != nil {
		if errors.Is(err, router.ErrUnknownProvider) {
			return nil, &Failure{Reason: ReasonUnknownProvider, Err: err}
		}
		return nil, &Failure{Reason: ReasonUpstreamUnavailable, Err: err}
	}

	res, err := s.router.Invoke(ctx, name, tier, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &Failure{Reason: ReasonCancelled, Err: err}
		}
		s.log.Error().Err(err).Str("provider", name).Str("tier", string(tier)).Msg("recommendation failed")
		return nil, &Failure{Reason: ReasonUpstreamUnavailable, Err: err}
	}

	c := res.Completion
	rec := &models.Recommendation{
		RequestID:       s.newID(),
		Recommendations: c.Text,
		LLMUsed:         res.Provider,
		Tier:            tier,
		CostUSD:         res.CostUSD,
		Tokens: models.TokenCounts{
			Input:  c.InputTokens,
			Output: c.OutputTokens,
			Total:  c.InputTokens + c.OutputTokens,
		},
		Fallback:  res.Fallback,
		CreatedAt: s.now().UTC(),
	}
	s.cache.Store(ctx, req, *rec)

	s.log.Info().
		Str("request_id", rec.RequestID).
		Str("tier", string(tier)).
		Str("provider", rec.LLMUsed).
		Bool("fallback", rec.Fallback).
		Float64("cost_usd", rec.CostUSD).
		Msg("served recommendation")
	return rec, nil
}

func validate(req models.Request) error {
	q := req.Query
	if strings.TrimSpace(q) == "" {
		return errors.New("query is required")
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return fmt.Errorf("query exceeds %d characters", MaxQueryLength)
	}
	for k, v := range req.Context {
		if !isScalar(v) {
			return fmt.Errorf("context %q: value must be a string, number or boolean", k)
		}
	}
	return nil
}

// isScalar accepts nil and any value whose kind is a string, bool, integer
// or float. json.Number is a string kind.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of provider usage and cache counters.
func (s *Service) Stats() models.UsageStats {
	st := s.tracker.Snapshot()
	st.Cache = s.cache.Stats()
	return st
}

// ClearCache wipes the response cache.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// InvalidateCache drops the cached answer for req.
func (s *Service) InvalidateCache(ctx context.Context, req models.Request) error {
	return s.cache.Invalidate(ctx, req)
}

// ResetStats zeroes usage and cache counters.
func (s *Service) ResetStats() {
	s.tracker.Reset()
	s.cache.ResetStats()
}

// Health summarises cache and provider readiness.
type Health struct {
	Status    string          `json:"status"`
	Cache     cache.Health    `json:"cache"`
	Providers map[string]bool `json:"llm_providers"`
}

// Health reports "healthy" when the cache is reachable or disabled, and
// "degraded" when it is configured but unreachable.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:    "healthy",
		Cache:     s.cache.Health(ctx),
		Providers: s.registry.Status(),
	}
	if h.Cache.Status == cache.StatusUnhealthy {
		h.Status = "degraded"
	}
	return h
}
