// Package router picks the provider for a complexity tier and invokes it
// with a single fallback hop.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/provider"
)

var (
	// ErrUnknownProvider is returned when an override names a provider that
	// is not configured or has no credentials.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUpstreamUnavailable is returned when no provider could serve the
	// request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ExhaustedError reports that the selected provider and its fallback both
// failed. It matches ErrUpstreamUnavailable and each attempt error.
type ExhaustedError struct {
	Errors []error
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%v after %d attempt(s): %s", ErrUpstreamUnavailable, len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	return append([]error{ErrUpstreamUnavailable}, e.Errors...)
}

// Recorder receives every attempt. *tracker.Tracker satisfies it.
type Recorder interface {
	Record(ctx context.Context, a models.Attempt) models.Attempt
}

// Result is a successful invocation.
type Result struct {
	Completion models.Completion
	// Provider is the provider that produced the completion.
	Provider string
	Fallback bool
	CostUSD  float64
	Attempts int
}

// Router resolves tiers to providers and invokes them.
type Router struct {
	cfg      config.RouterConfig
	registry *provider.Registry
	timeouts map[string]time.Duration
	pricing  map[string]models.Pricing
	recorder Recorder
	log      zerolog.Logger
}

// New creates a Router.
func New(cfg *config.Config, registry *provider.Registry, recorder Recorder, log zerolog.Logger) *Router {
	names := registry.Names()
	timeouts := make(map[string]time.Duration, len(names))
	pricing := make(map[string]models.Pricing, len(names))
	for _, name := range names {
		if p, ok := cfg.Provider(name); ok {
			timeouts[name] = p.Timeout
			pricing[name] = p.Pricing
		}
	}
	return &Router{
		cfg:      cfg.Router,
		registry: registry,
		timeouts: timeouts,
		pricing:  pricing,
		recorder: recorder,
		log:      log,
	}
}

// Route returns the provider for tier. A non-empty override wins when it
// names an available provider and fails with ErrUnknownProvider otherwise.
func (r *Router) Route(tier models.Tier, override string) (string, error) {
	if override != "" {
		name := strings.ToLower(strings.TrimSpace(override))
		if !r.registry.Available(name) {
			return "", fmt.Errorf("%w: %q", ErrUnknownProvider, override)
		}
		return name, nil
	}

	name, ok := r.cfg.Tiers[tier]
	if !ok || name == "" {
		name = r.cfg.Primary
	}
	if r.registry.Available(name) {
		return name, nil
	}

	next, ok := r.next(name)
	if !ok {
		return "", fmt.Errorf("%w: no available provider for tier %s", ErrUpstreamUnavailable, tier)
	}
	r.log.Debug().Str("tier", string(tier)).Str("skipped", name).Str("provider", next).Msg("mapped provider unavailable")
	return next, nil
}

// Invoke calls the named provider and, if it fails, the next available
// provider in the fallback order whose price does not exceed the failed
// one's. At most two attempts are made; each is reported to the recorder
// exactly once.
func (r *Router) Invoke(ctx context.Context, name string, tier models.Tier, req models.Request) (Result, error) {
	res, err := r.attempt(ctx, name, tier, req, false)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{Attempts: 1}, ctx.Err()
	}

	next, ok := r.fallback(name)
	if !ok {
		return Result{Attempts: 1}, &ExhaustedError{Errors: []error{err}}
	}
	r.log.Warn().Err(err).Str("provider", name).Str("fallback", next).Msg("provider failed, falling back")

	res, ferr := r.attempt(ctx, next, tier, req, true)
	if ferr == nil {
		res.Fallback = true
		res.Attempts = 2
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{Attempts: 2}, ctx.Err()
	}
	return Result{Attempts: 2}, &ExhaustedError{Errors: []error{err, ferr}}
}

func (r *Router) attempt(ctx context.Context, name string, tier models.Tier, req models.Request, fallback bool) (Result, error) {
	p, ok := r.registry.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	callCtx := ctx
	if d := r.timeouts[name]; d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	c, err := p.Complete(callCtx, req.Query, req.Context)
	latency := time.Since(start)

	// A deadline hit by the per-provider bound is a provider timeout even if
	// the adapter reported it differently.
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && provider.KindOf(err) != provider.KindTimeout {
		err = &provider.Error{Kind: provider.KindTimeout, Provider: name, Err: err}
	}

	a := models.Attempt{
		Provider: name,
		Tier:     tier,
		Success:  err == nil,
		Fallback: fallback,
		Latency:  latency,
	}
	if err != nil {
		a.ErrorKind = string(provider.KindOf(err))
		if a.ErrorKind == "" {
			a.ErrorKind = string(provider.KindUnavailable)
		}
	} else {
		a.InputTokens = c.InputTokens
		a.OutputTokens = c.OutputTokens
	}
	if r.recorder != nil {
		a = r.recorder.Record(context.WithoutCancel(ctx), a)
	}

	if err != nil {
		return Result{}, err
	}
	if c.Provider == "" {
		c.Provider = name
	}
	return Result{Completion: c, Provider: name, CostUSD: a.CostUSD, Attempts: 1}, nil
}

// next returns the first available provider after name in the fallback
// order, wrapping around. name itself is never returned.
func (r *Router) next(name string) (string, bool) {
	return r.search(name, func(string) bool { return true })
}

// fallback is next restricted to providers priced at or below name.
func (r *Router) fallback(name string) (string, bool) {
	limit := r.unitPrice(name)
	return r.search(name, func(candidate string) bool {
		return r.unitPrice(candidate) <= limit
	})
}

func (r *Router) search(name string, accept func(string) bool) (string, bool) {
	order := r.cfg.FallbackOrder
	if len(order) == 0 {
		return "", false
	}
	start := slices.Index(order, name)
	for i := 1; i <= len(order); i++ {
		candidate := order[(start+i+len(order))%len(order)]
		if candidate != name && r.registry.Available(candidate) && accept(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// unitPrice is the cost of 1K input plus 1K output tokens.
func (r *Router) unitPrice(name string) float64 {
	return r.pricing[name].Cost(1000, 1000)
}
