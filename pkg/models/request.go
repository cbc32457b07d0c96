package models

import "time"

// Tier is a complexity bucket used to pick a provider.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Tiers lists every tier from cheapest to most demanding.
var Tiers = []Tier{TierSimple, TierMedium, TierComplex}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierSimple, TierMedium, TierComplex:
		return true
	}
	return false
}

// Request is an incoming gift-recommendation query.
type Request struct {
	Query         string         `json:"query"`
	Context       map[string]any `json:"context,omitempty"`
	ForceProvider string         `json:"force_provider,omitempty"`
}

// TokenCounts holds the token usage reported for a recommendation.
type TokenCounts struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Recommendation is the result served to the caller, fresh or from cache.
type Recommendation struct {
	RequestID       string      `json:"request_id"`
	Recommendations string      `json:"recommendations"`
	LLMUsed         string      `json:"llm_used"`
	Tier            Tier        `json:"tier,omitempty"`
	Cached          bool        `json:"cached"`
	CachedAt        *time.Time  `json:"cached_at,omitempty"`
	CostUSD         float64     `json:"cost_usd"`
	Tokens          TokenCounts `json:"tokens"`
	Fallback        bool        `json:"fallback,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Completion is what a provider adapter returns for a single call.
type Completion struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Provider     string `json:"provider"`
}
