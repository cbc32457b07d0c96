package tracker

import (
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// daysPerMonth is the month length used for projections.
const daysPerMonth = 30

// TierEstimate is the projected monthly load and cost of one tier.
type TierEstimate struct {
	Tier     models.Tier `json:"tier"`
	Provider string      `json:"provider"`
	Requests float64     `json:"requests"`
	Cost     float64     `json:"cost_usd"`
}

// Estimate is a monthly cost projection compared against a single-provider
// baseline.
type Estimate struct {
	DailyRequests   int            `json:"daily_requests"`
	MonthlyRequests int            `json:"monthly_requests"`
	Tiers           []TierEstimate `json:"tiers"`
	Total           float64        `json:"total_cost_usd"`
	BaselineName    string         `json:"baseline_name"`
	Baseline        float64        `json:"baseline_cost_usd"`
	Savings         float64        `json:"savings_usd"`
	SavingsPercent  float64        `json:"savings_percent"`
}

// EstimateMonthly projects the monthly cost of serving est.DailyRequests
// with the configured tier split, tier routing and price table.
func EstimateMonthly(est config.EstimateConfig, tiers map[models.Tier]string, pricing map[string]models.Pricing) Estimate {
	monthly := est.DailyRequests * daysPerMonth
	perRequest := func(p models.Pricing) float64 {
		return p.Cost(est.AvgInputTokens, est.AvgOutputTokens)
	}

	out := Estimate{
		DailyRequests:   est.DailyRequests,
		MonthlyRequests: monthly,
		BaselineName:    est.BaselineName,
	}
	for _, tier := range models.Tiers {
		share := est.Split[tier]
		if share <= 0 {
			continue
		}
		provider := tiers[tier]
		reqs := float64(monthly) * share
		cost := reqs * perRequest(pricing[provider])
		out.Tiers = append(out.Tiers, TierEstimate{
			Tier:     tier,
			Provider: provider,
			Requests: reqs,
			Cost:     cost,
		})
		out.Total += cost
	}

	out.Baseline = float64(monthly) * perRequest(est.BaselinePricing)
	out.Savings = out.Baseline - out.Total
	if out.Baseline > 0 {
		out.SavingsPercent = out.Savings / out.Baseline * 100
	}
	return out
}
