package models

// Pricing defines per-1K token costs for a provider. Zero is a valid price.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// Cost returns the USD cost of the given token counts.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/1000)*p.InputPer1K +
		(float64(outputTokens)/1000)*p.OutputPer1K
}
