package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/cache/memory"
	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/provider"
	"github.com/pario-ai/giftrouter/pkg/recommend"
	"github.com/pario-ai/giftrouter/pkg/router"
	"github.com/pario-ai/giftrouter/pkg/tracker"
	"github.com/rs/zerolog"
)

type stubProvider struct{ name string }

func (p stubProvider) Name() string    { return p.name }
func (p stubProvider) Available() bool { return true }
func (p stubProvider) Complete(context.Context, string, map[string]any) (models.Completion, error) {
	return models.Completion{Text: "1. Une liseuse", InputTokens: 200, OutputTokens: 300, Provider: p.name}, nil
}

// fakeLedger implements UsageReader for testing.
type fakeLedger struct {
	rows  []models.UsageSummary
	since time.Time
}

func (f *fakeLedger) Summary(_ context.Context, since time.Time) ([]models.UsageSummary, error) {
	f.since = since
	return f.rows, nil
}

func newTestServer(t *testing.T, store cache.Store, opts Options) *Server {
	t.Helper()
	cfg := config.Default()
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = "sk-" + cfg.Providers[i].Name
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	log := zerolog.Nop()
	reg := provider.NewRegistry(stubProvider{"together"}, stubProvider{"gemini"}, stubProvider{"claude"})
	tr := tracker.New(cfg.Pricing(), tracker.Options{Logger: log})
	cl := classifier.New(cfg.Classifier)
	cm := cache.NewManager(store, cache.Options{Logger: log})
	svc := recommend.New(cm, cl, router.New(cfg, reg, tr, log), tr, reg, recommend.Options{Logger: log})

	if opts.Classifier == nil {
		opts.Classifier = cl
	}
	if opts.Estimate == nil {
		opts.Estimate = func() tracker.Estimate {
			return tracker.EstimateMonthly(cfg.Estimate, cfg.Router.Tiers, cfg.Pricing())
		}
	}
	opts.Version = "test"
	return New(svc, opts)
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t, memory.New(), Options{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "giftrouter" || result.ServerInfo.Version != "test" {
		t.Errorf("server info = %+v", result.ServerInfo)
	}
	if !strings.Contains(string(data), `"capabilities":{"tools":{}}`) {
		t.Errorf("capabilities missing tools: %s", data)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(t, memory.New(), Options{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestRecommendThenCached(t *testing.T) {
	srv := newTestServer(t, memory.New(), Options{})
	args := `{"query":"cadeau pour maman qui aime lire, budget 50$"}`

	first := callTool(t, srv, "giftrouter_recommend", args)
	if first.IsError {
		t.Fatalf("unexpected tool error: %s", first.Content[0].Text)
	}
	if !strings.Contains(first.Content[0].Text, "provider: together") {
		t.Errorf("expected together, got: %s", first.Content[0].Text)
	}

	second := callTool(t, srv, "giftrouter_recommend", args)
	if !strings.Contains(second.Content[0].Text, "(cached)") {
		t.Errorf("expected cached answer, got: %s", second.Content[0].Text)
	}

	stats := callTool(t, srv, "giftrouter_cache_stats", "")
	if !strings.Contains(stats.Content[0].Text, "Hit Rate: 50.0%") {
		t.Errorf("expected 50%% hit rate, got: %s", stats.Content[0].Text)
	}
}

func TestRecommendInvalid(t *testing.T) {
	srv := newTestServer(t, memory.New(), Options{})
	result := callTool(t, srv, "giftrouter_recommend", `{"query":""}`)
	if !result.IsError {
		t.Errorf("expected tool error, got: %s", result.Content[0].Text)
	}

	result = callTool(t, srv, "giftrouter_recommend", `{"query":"idée","force_provider":"mistral"}`)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "mistral") {
		t.Errorf("expected unknown provider error, got: %s", result.Content[0].Text)
	}
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t, memory.New(), Options{})
	result := callTool(t, srv, "giftrouter_classify", `{"query":"cadeau pour maman qui aime lire, budget 50$"}`)
	if !strings.Contains(result.Content[0].Text, "Tier: simple") {
		t.Errorf("expected simple tier, got: %s", result.Content[0].Text)
	}
}

func TestStatsAfterRecommend(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	empty := callTool(t, srv, "giftrouter_stats", "")
	if !strings.Contains(empty.Content[0].Text, "No provider calls") {
		t.Errorf("expected empty stats, got: %s", empty.Content[0].Text)
	}

	callTool(t, srv, "giftrouter_recommend", `{"query":"cadeau"}`)
	result := callTool(t, srv, "giftrouter_stats", "")
	if !strings.Contains(result.Content[0].Text, "together") {
		t.Errorf("expected together row, got: %s", result.Content[0].Text)
	}
}

func TestCacheDisabled(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	result := callTool(t, srv, "giftrouter_cache_stats", "")
	if !strings.Contains(result.Content[0].Text, "disabled") {
		t.Errorf("expected 'disabled', got: %s", result.Content[0].Text)
	}
}

func TestCostEstimate(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	result := callTool(t, srv, "giftrouter_cost_estimate", "")
	for _, want := range []string{"30,000 requests/month", "openai-gpt-3.5-turbo", "Savings"} {
		if !strings.Contains(result.Content[0].Text, want) {
			t.Errorf("expected %q in output, got: %s", want, result.Content[0].Text)
		}
	}
}

func TestUsage(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	result := callTool(t, srv, "giftrouter_usage", "")
	if !strings.Contains(result.Content[0].Text, "not enabled") {
		t.Errorf("expected 'not enabled', got: %s", result.Content[0].Text)
	}

	l := &fakeLedger{rows: []models.UsageSummary{
		{Provider: "claude", Attempts: 4, Successes: 3, InputTokens: 1200, OutputTokens: 900, Cost: 0.000525},
	}}
	srv = newTestServer(t, nil, Options{Ledger: l})
	result = callTool(t, srv, "giftrouter_usage", `{"since":"2026-01-01"}`)
	if !strings.Contains(result.Content[0].Text, "claude") || !strings.Contains(result.Content[0].Text, "1,200") {
		t.Errorf("unexpected usage output: %s", result.Content[0].Text)
	}
	if got := l.since.Format("2006-01-02"); got != "2026-01-01" {
		t.Errorf("since = %s, want 2026-01-01", got)
	}

	result = callTool(t, srv, "giftrouter_usage", `{"since":"yesterday"}`)
	if !result.IsError {
		t.Error("expected error for bad date")
	}
}

func TestUnknownToolAndMethod(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	result := callTool(t, srv, "pario_budget", "")
	if !result.IsError {
		t.Error("expected unknown tool error")
	}

	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: "resources/list"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}
}

func TestParseError(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	var out bytes.Buffer
	input := "not json\n" + `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	if err := srv.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 response line, got %d: %s", len(lines), out.String())
	}
	var resp Response
	json.Unmarshal([]byte(lines[0]), &resp)
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}
}
