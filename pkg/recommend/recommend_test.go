package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/cache/memory"
	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/provider"
	"github.com/pario-ai/giftrouter/pkg/router"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

const scenarioQuery = "cadeau pour maman qui aime lire, budget 50$"

type fakeProvider struct {
	name  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) Complete(ctx context.Context, prompt string, _ map[string]any) (models.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return models.Completion{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return models.Completion{}, f.err
	}
	return models.Completion{
		Text:         "Idées pour: " + prompt,
		InputTokens:  200,
		OutputTokens: 300,
		Provider:     f.name,
	}, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("dial tcp: connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("refused") }
func (failingStore) Ping(context.Context) error           { return errors.New("refused") }
func (failingStore) Clear(context.Context) error          { return errors.New("refused") }
func (failingStore) Close() error                         { return nil }

type fixture struct {
	svc      *Service
	tracker  *tracker.Tracker
	together *fakeProvider
	gemini   *fakeProvider
	claude   *fakeProvider
}

func newFixture(t *testing.T, store cache.Store) *fixture {
	t.Helper()
	cfg := config.Default()
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = "sk-" + cfg.Providers[i].Name
		cfg.Providers[i].Timeout = 2 * time.Second
	}
	require.NoError(t, cfg.Validate())

	f := &fixture{
		together: &fakeProvider{name: "together"},
		gemini:   &fakeProvider{name: "gemini"},
		claude:   &fakeProvider{name: "claude"},
	}
	log := zerolog.Nop()
	reg := provider.NewRegistry(f.together, f.gemini, f.claude)
	f.tracker = tracker.New(cfg.Pricing(), tracker.Options{Logger: log})
	cm := cache.NewManager(store, cache.Options{TTL: cfg.Cache.TTL, Logger: log})
	f.svc = New(cm, classifier.New(cfg.Classifier), router.New(cfg, reg, f.tracker, log), f.tracker, reg, Options{Logger: log})
	return f
}

func TestScenarioMissThenHit(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()
	req := models.Request{Query: scenarioQuery}

	first, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, models.TierSimple, first.Tier)
	assert.Equal(t, "together", first.LLMUsed)
	assert.Greater(t, first.CostUSD, 0.0)
	assert.InDelta(t, 0.00003, first.CostUSD, 1e-12)
	assert.Equal(t, 500, first.Tokens.Total)
	assert.NotEmpty(t, first.RequestID)

	st := f.svc.Stats()
	assert.Zero(t, st.Cache.HitRate)
	assert.EqualValues(t, 1, st.Cache.Misses)

	second, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.NotNil(t, second.CachedAt)
	assert.Zero(t, second.CostUSD)
	assert.Equal(t, "together", second.LLMUsed)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	st = f.svc.Stats()
	assert.InDelta(t, 0.5, st.Cache.HitRate, 1e-9)
	assert.EqualValues(t, 1, st.TotalRequests)
	assert.Equal(t, 1, f.together.Calls())
}

func TestFallbackServesFresh(t *testing.T) {
	f := newFixture(t, memory.New())
	f.together.err = &provider.Error{Kind: provider.KindUnavailable, Provider: "together", Err: errors.New("503")}

	rec, err := f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery})
	require.NoError(t, err)
	assert.Equal(t, "gemini", rec.LLMUsed)
	assert.True(t, rec.Fallback)

	st := f.svc.Stats()
	assert.EqualValues(t, 2, st.TotalAttempts)
	assert.EqualValues(t, 1, st.Providers["together"].Failures)
	assert.EqualValues(t, 1, st.Providers["gemini"].Successes)
}

func TestOverridePrecedence(t *testing.T) {
	f := newFixture(t, memory.New())

	rec, err := f.svc.Recommend(context.Background(), models.Request{
		Query:         scenarioQuery,
		ForceProvider: "claude",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", rec.LLMUsed)
	assert.Empty(t, rec.Tier)
	assert.Equal(t, 0, f.together.Calls())
	assert.InDelta(t, 0.000125, rec.CostUSD, 1e-12)
}

func TestUnknownOverride(t *testing.T) {
	f := newFixture(t, memory.New())
	_, err := f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery, ForceProvider: "openai"})
	require.Error(t, err)
	assert.Equal(t, ReasonUnknownProvider, ReasonOf(err))
	assert.ErrorIs(t, err, router.ErrUnknownProvider)
}

func TestUpstreamUnavailable(t *testing.T) {
	f := newFixture(t, memory.New())
	f.together.err = errors.New("boom")
	f.gemini.err = errors.New("boom")

	_, err := f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery})
	require.Error(t, err)
	assert.Equal(t, ReasonUpstreamUnavailable, ReasonOf(err))
	assert.ErrorIs(t, err, router.ErrUpstreamUnavailable)

	// Nothing cached for a failure.
	_, err = f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery})
	require.Error(t, err)
	assert.Equal(t, 2, f.together.Calls())
}

func TestInvalidRequest(t *testing.T) {
	f := newFixture(t, memory.New())
	tests := []models.Request{
		{Query: "   "},
		{Query: "cadeau", Context: map[string]any{"tags": []any{"a", "b"}}},
		{Query: string(make([]rune, MaxQueryLength+1))},
	}
	for _, req := range tests {
		_, err := f.svc.Recommend(context.Background(), req)
		assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
	}
	assert.Zero(t, f.svc.Stats().TotalAttempts)
}

func TestValidateContextValues(t *testing.T) {
	type occasion string
	valid := map[string]any{
		"nil":      nil,
		"string":   "anniversaire",
		"named":    occasion("noel"),
		"bool":     true,
		"int8":     int8(7),
		"int16":    int16(30),
		"int":      42,
		"uint":     uint(50),
		"uint8":    uint8(3),
		"uint64":   uint64(1 << 40),
		"float32":  float32(49.99),
		"float64":  50.0,
		"json num": json.Number("50"),
	}
	for name, v := range valid {
		err := validate(models.Request{Query: "cadeau", Context: map[string]any{"k": v}})
		assert.NoError(t, err, name)
	}

	invalid := map[string]any{
		"slice":   []any{"a"},
		"map":     map[string]any{"a": 1},
		"struct":  struct{}{},
		"pointer": new(int),
	}
	for name, v := range invalid {
		err := validate(models.Request{Query: "cadeau", Context: map[string]any{"k": v}})
		assert.Error(t, err, name)
	}
}

func TestCacheOutageDegrades(t *testing.T) {
	f := newFixture(t, failingStore{})

	for range 2 {
		rec, err := f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery})
		require.NoError(t, err)
		assert.False(t, rec.Cached)
		assert.Greater(t, rec.CostUSD, 0.0)
	}
	st := f.svc.Stats()
	assert.EqualValues(t, 2, st.Cache.Misses)
	assert.Zero(t, st.Cache.HitRate)
	assert.Equal(t, 2, f.together.Calls())

	h := f.svc.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.True(t, h.Providers["claude"])
}

func TestCancelledCallerStillRecorded(t *testing.T) {
	f := newFixture(t, memory.New())
	f.together.delay = 150 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.Recommend(ctx, models.Request{Query: scenarioQuery})
	assert.Equal(t, ReasonCancelled, ReasonOf(err))

	req := models.Request{Query: scenarioQuery}
	require.Eventually(t, func() bool {
		_, ok := f.svc.cache.Lookup(context.Background(), req)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, f.svc.Stats().TotalRequests)

	rec, err := f.svc.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, rec.Cached)
}

func TestConcurrentMissesCollapse(t *testing.T) {
	f := newFixture(t, memory.New())
	f.together.delay = 100 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*models.Recommendation, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.svc.Recommend(context.Background(), models.Request{Query: scenarioQuery})
			if assert.NoError(t, err) {
				results[i] = rec
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.together.Calls())
	ids := map[string]bool{}
	for _, rec := range results {
		require.NotNil(t, rec)
		ids[rec.RequestID] = true
	}
	assert.Len(t, ids, 5)
}

func TestClearAndResetStats(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()
	req := models.Request{Query: scenarioQuery}

	_, _ = f.svc.Recommend(ctx, req)
	require.NoError(t, f.svc.ClearCache(ctx))

	rec, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.False(t, rec.Cached)

	f.svc.ResetStats()
	st := f.svc.Stats()
	assert.Zero(t, st.TotalAttempts)
	assert.Zero(t, st.Cache.Hits+st.Cache.Misses)
}

func TestClearCacheFailureSurfaces(t *testing.T) {
	f := newFixture(t, failingStore{})
	err := f.svc.ClearCache(context.Background())
	assert.ErrorIs(t, err, cache.ErrAdminOperationFailed)
}
