package models

import "time"

// Attempt is a single provider invocation as reported to the cost tracker.
// Failed attempts carry zero tokens and a non-empty ErrorKind.
type Attempt struct {
	Provider     string        `json:"provider"`
	Tier         Tier          `json:"tier,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	Success      bool          `json:"success"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Fallback     bool          `json:"fallback,omitempty"`
	Latency      time.Duration `json:"latency"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProviderUsage aggregates attempts against one provider.
type ProviderUsage struct {
	Attempts     int64   `json:"attempts"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost_usd"`
	Percentage   float64 `json:"percentage"`
}

// UsageStats is a point-in-time copy of process-lifetime usage.
type UsageStats struct {
	Providers         map[string]ProviderUsage `json:"providers"`
	TotalRequests     int64                    `json:"total_requests"`
	TotalAttempts     int64                    `json:"total_attempts"`
	TotalCost         float64                  `json:"total_cost_usd"`
	AvgCostPerRequest float64                  `json:"avg_cost_per_request"`
	Cache             CacheStats               `json:"cache"`
	Since             time.Time                `json:"since"`
}

// UsageSummary aggregates persisted ledger rows for one provider.
type UsageSummary struct {
	Provider     string  `json:"provider"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost_usd"`
}
