package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/giftrouter/pkg/models"
)

type recommendArgs struct {
	Query         string         `json:"query"`
	Context       map[string]any `json:"context"`
	ForceProvider string         `json:"force_provider"`
}

type usageArgs struct {
	Since string `json:"since"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"giftrouter_recommend":     handleRecommend,
	"giftrouter_classify":      handleClassify,
	"giftrouter_stats":         handleStats,
	"giftrouter_cache_stats":   handleCacheStats,
	"giftrouter_cost_estimate": handleCostEstimate,
	"giftrouter_usage":         handleUsage,
}

var contextSchema = map[string]any{
	"type":        "object",
	"description": "Scalar attributes such as occasion, age or budget (optional)",
}

var allTools = []Tool{
	{
		Name:        "giftrouter_recommend",
		Description: "Get gift recommendations. Identical questions are answered from cache.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The gift question, in any language",
				},
				"context": contextSchema,
				"force_provider": map[string]any{
					"type":        "string",
					"description": "Provider name to use instead of tier routing (optional)",
				},
			},
		},
	},
	{
		Name:        "giftrouter_classify",
		Description: "Show the complexity score breakdown and tier for a question without calling any provider.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"context": contextSchema,
			},
		},
	},
	{
		Name:        "giftrouter_stats",
		Description: "Show per-provider usage and cost since the last reset.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "giftrouter_cache_stats",
		Description: "Show response cache statistics (hits, misses, errors, hit rate).",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "giftrouter_cost_estimate",
		Description: "Project the monthly cost of tier routing against a single-provider baseline.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "giftrouter_usage",
		Description: "Show persisted per-provider usage from the ledger.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional, defaults to start of month)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []TextContent{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	r := textResult(text)
	r.IsError = true
	return r
}

func handleRecommend(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args recommendArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	rec, err := s.svc.Recommend(ctx, models.Request{
		Query:         args.Query,
		Context:       args.Context,
		ForceProvider: args.ForceProvider,
	})
	if err != nil {
		return errorResult("Recommendation failed: " + err.Error())
	}
	return textResult(formatRecommendation(rec))
}

func handleClassify(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.classifier == nil {
		return errorResult("Classifier is not configured.")
	}
	var args recommendArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Query == "" {
		return errorResult("query is required")
	}
	req := models.Request{Query: args.Query, Context: args.Context}
	return textResult(formatBreakdown(s.classifier.Explain(req), s.classifier.Classify(req)))
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatUsageStats(s.svc.Stats()))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats := s.svc.Stats().Cache
	if !stats.Enabled {
		return textResult("Cache is disabled.")
	}
	return textResult(formatCacheStats(stats))
}

func handleCostEstimate(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.estimate == nil {
		return errorResult("Cost estimation is not configured.")
	}
	return textResult(formatEstimate(s.estimate()))
}

func handleUsage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.ledger == nil {
		return textResult("The usage ledger is not enabled.")
	}
	var args usageArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := beginningOfMonth()
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	rows, err := s.ledger.Summary(ctx, since)
	if err != nil {
		return errorResult("Error reading ledger: " + err.Error())
	}
	return textResult(formatUsageSummary(rows))
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
