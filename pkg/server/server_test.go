package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/cache/memory"
	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/provider"
	"github.com/pario-ai/giftrouter/pkg/recommend"
	"github.com/pario-ai/giftrouter/pkg/router"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

type upstream struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		if code := int(u.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			w.Write([]byte(`{"error":"upstream down"}`))
			return
		}
		resp := models.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "mixtral",
			Choices: []models.Choice{
				{Message: models.ChatMessage{Role: "assistant", Content: "1. Une liseuse\n2. Un marque-page en cuir"}, FinishReason: "stop"},
			},
			Usage: &models.Usage{PromptTokens: 200, CompletionTokens: 300, TotalTokens: 500},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(u.Close)
	return u
}

func setupServer(t *testing.T, up *upstream, cacheEnabled bool) *Server {
	t.Helper()
	cfg := config.Default()
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.URL = up.URL
		p.Timeout = 2 * time.Second
		if p.Name == "gemini" {
			continue
		}
		p.Type = "openai"
		p.APIKey = "sk-" + p.Name
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	log := zerolog.Nop()
	reg, err := provider.FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	promReg := prometheus.NewRegistry()
	rec := metrics.New(promReg)

	var store cache.Store
	if cacheEnabled {
		store = memory.New()
	}
	tr := tracker.New(cfg.Pricing(), tracker.Options{Metrics: rec, Logger: log})
	cm := cache.NewManager(store, cache.Options{TTL: cfg.Cache.TTL, Logger: log, Metrics: rec})
	svc := recommend.New(cm, classifier.New(cfg.Classifier), router.New(cfg, reg, tr, log), tr, reg,
		recommend.Options{Logger: log, Metrics: rec})

	return New(cfg, svc, Options{Logger: log, Metrics: rec, Gatherer: promReg, Version: "test"})
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

const scenarioBody = `{"query":"cadeau pour maman qui aime lire, budget 50$"}`

func TestRecommendationsMissThenHit(t *testing.T) {
	up := newUpstream(t)
	srv := setupServer(t, up, true)

	w := do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Giftrouter-Cache") != "miss" {
		t.Error("expected cache miss on first request")
	}
	var first models.Recommendation
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.LLMUsed != "together" || first.Tier != models.TierSimple {
		t.Errorf("expected together/simple, got %s/%s", first.LLMUsed, first.Tier)
	}
	if first.CostUSD <= 0 {
		t.Errorf("expected positive cost, got %f", first.CostUSD)
	}

	w = do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	if w.Header().Get("X-Giftrouter-Cache") != "hit" {
		t.Error("expected cache hit on second request")
	}
	var second models.Recommendation
	json.Unmarshal(w.Body.Bytes(), &second)
	if !second.Cached || second.CostUSD != 0 {
		t.Errorf("expected cached zero-cost answer, got %+v", second)
	}
	if up.calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", up.calls.Load())
	}

	w = do(t, srv, http.MethodGet, "/api/stats", "")
	var stats statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Cache.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.Cache.HitRate)
	}
	if stats.Providers["together"].Successes != 1 {
		t.Errorf("expected 1 together success, got %+v", stats.Providers["together"])
	}
	if stats.Environment != "production" {
		t.Errorf("unexpected environment %q", stats.Environment)
	}
}

func TestRecommendationsErrors(t *testing.T) {
	up := newUpstream(t)
	srv := setupServer(t, up, true)

	tests := []struct {
		name   string
		body   string
		code   int
		reason string
	}{
		{"bad json", `{"query":`, http.StatusBadRequest, "invalid_request"},
		{"empty query", `{"query":"  "}`, http.StatusBadRequest, "invalid_request"},
		{"unknown provider", `{"query":"cadeau","force_provider":"openai"}`, http.StatusBadRequest, "unknown_provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/recommendations", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, body.Error.Reason)
			}
		})
	}
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	up := newUpstream(t)
	up.status.Store(http.StatusServiceUnavailable)
	srv := setupServer(t, up, true)

	w := do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	// gemini has no key and claude costs more than together, so there is no
	// fallback hop.
	if up.calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", up.calls.Load())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	w := do(t, srv, http.MethodGet, "/api/recommendations", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	w := do(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var h healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || !h.CacheEnabled || h.Version != "test" {
		t.Errorf("unexpected health: %+v", h)
	}
	if !h.Providers["together"] || h.Providers["gemini"] {
		t.Errorf("unexpected provider status: %+v", h.Providers)
	}
}

func TestConfigHasNoSecrets(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	w := do(t, srv, http.MethodGet, "/api/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sk-") {
		t.Errorf("config leaked a key: %s", w.Body.String())
	}
}

func TestCacheClear(t *testing.T) {
	up := newUpstream(t)
	srv := setupServer(t, up, true)

	do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	w := do(t, srv, http.MethodPost, "/api/cache/clear", "")
	if !strings.Contains(w.Body.String(), `"success"`) {
		t.Fatalf("unexpected clear response: %s", w.Body.String())
	}
	do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	if up.calls.Load() != 2 {
		t.Errorf("expected a fresh upstream call after clear, got %d calls", up.calls.Load())
	}
}

func TestCacheInvalidate(t *testing.T) {
	up := newUpstream(t)
	srv := setupServer(t, up, true)

	do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	w := do(t, srv, http.MethodPost, "/api/cache/invalidate", `{"query":"CADEAU pour maman qui aime lire, budget 50$"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	if w.Header().Get("X-Giftrouter-Cache") != "miss" {
		t.Error("expected miss after invalidation")
	}
}

func TestCacheDisabled(t *testing.T) {
	srv := setupServer(t, newUpstream(t), false)
	w := do(t, srv, http.MethodPost, "/api/cache/clear", "")
	if !strings.Contains(w.Body.String(), "cache_disabled") {
		t.Errorf("expected cache_disabled, got %s", w.Body.String())
	}
}

func TestStatsReset(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)
	do(t, srv, http.MethodPost, "/api/stats/reset", "")

	w := do(t, srv, http.MethodGet, "/api/stats", "")
	var stats statsResponse
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalAttempts != 0 || stats.Cache.Misses != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	do(t, srv, http.MethodPost, "/api/recommendations", scenarioBody)

	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"giftrouter_http_requests_total", "giftrouter_provider_attempts_total", "giftrouter_cache_lookups_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRoot(t *testing.T) {
	srv := setupServer(t, newUpstream(t), true)
	w := do(t, srv, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "giftrouter") {
		t.Errorf("unexpected root response %d: %s", w.Code, w.Body.String())
	}
	if do(t, srv, http.MethodGet, "/nope", "").Code != http.StatusNotFound {
		t.Error("expected 404 for unknown path")
	}
}
