package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

func formatRecommendation(rec *models.Recommendation) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(rec.Recommendations))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "provider: %s", rec.LLMUsed)
	if rec.Tier != "" {
		fmt.Fprintf(&b, "  tier: %s", rec.Tier)
	}
	if rec.Cached {
		b.WriteString("  (cached)")
	} else {
		fmt.Fprintf(&b, "  cost: $%.6f", rec.CostUSD)
	}
	if rec.Fallback {
		b.WriteString("  (fallback)")
	}
	b.WriteString("\n")
	return b.String()
}

func formatBreakdown(bd classifier.Breakdown, tier models.Tier) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %6s\n", "Signal", "Points")
	b.WriteString(strings.Repeat("-", 19) + "\n")
	fmt.Fprintf(&b, "%-12s %6d\n", "words", bd.Words)
	fmt.Fprintf(&b, "%-12s %6d\n", "cues", bd.Cues)
	fmt.Fprintf(&b, "%-12s %6d\n", "questions", bd.Questions)
	fmt.Fprintf(&b, "%-12s %6d\n", "context", bd.Context)
	fmt.Fprintf(&b, "%-12s %6d\n", "comparison", bd.Comparison)
	fmt.Fprintf(&b, "%-12s %6d\n", "total", bd.Total)
	fmt.Fprintf(&b, "\nTier: %s\n", tier)
	return b.String()
}

func formatUsageStats(st models.UsageStats) string {
	if len(st.Providers) == 0 {
		return "No provider calls recorded yet."
	}
	names := make([]string, 0, len(st.Providers))
	for name := range st.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s %8s %10s %10s %12s %7s\n",
		"Provider", "Attempts", "Failures", "Input", "Output", "Cost", "Share")
	b.WriteString(strings.Repeat("-", 73) + "\n")
	for _, name := range names {
		u := st.Providers[name]
		fmt.Fprintf(&b, "%-12s %8d %8d %10s %10s %12s %6.1f%%\n",
			name, u.Attempts, u.Failures, humanize.Comma(u.InputTokens), humanize.Comma(u.OutputTokens),
			fmt.Sprintf("$%.6f", u.Cost), u.Percentage)
	}
	fmt.Fprintf(&b, "\nRequests: %d  Total cost: $%.6f  Avg/request: $%.6f\n",
		st.TotalRequests, st.TotalCost, st.AvgCostPerRequest)
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Errors:   %d\n"+
		"  Hit Rate: %.1f%%\n"+
		"  TTL:      %d days\n",
		stats.Hits, stats.Misses, stats.Errors, stats.HitRate*100, stats.TTLDays)
}

func formatEstimate(e tracker.Estimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s requests/day, %s requests/month\n\n",
		humanize.Comma(int64(e.DailyRequests)), humanize.Comma(int64(e.MonthlyRequests)))
	fmt.Fprintf(&b, "%-8s %-12s %10s %12s\n", "Tier", "Provider", "Requests", "Cost")
	b.WriteString(strings.Repeat("-", 45) + "\n")
	for _, t := range e.Tiers {
		fmt.Fprintf(&b, "%-8s %-12s %10.0f %12s\n", t.Tier, t.Provider, t.Requests, fmt.Sprintf("$%.4f", t.Cost))
	}
	fmt.Fprintf(&b, "\nTotal:    $%.4f\nBaseline: $%.4f (%s)\nSavings:  $%.4f (%.1f%%)\n",
		e.Total, e.Baseline, e.BaselineName, e.Savings, e.SavingsPercent)
	return b.String()
}

func formatUsageSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s %9s %10s %10s %12s\n",
		"Provider", "Attempts", "Successes", "Input", "Output", "Cost")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %8d %9d %10s %10s %12s\n",
			r.Provider, r.Attempts, r.Successes, humanize.Comma(r.InputTokens), humanize.Comma(r.OutputTokens),
			fmt.Sprintf("$%.6f", r.Cost))
	}
	return b.String()
}
