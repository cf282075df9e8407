package ai

// Static per-token pricing for the supported models (as of 2025-01-01),
// in USD per token. Costs are computed over the call's total token
// count (prompt + completion).
//
// Sources:
//   - OpenAI: https://openai.com/pricing
//   - Anthropic: https://anthropic.com/pricing
//   - Google: https://cloud.google.com/vertex-ai/pricing
//
// Prices change; update this map as providers adjust pricing.
var defaultCostPerToken = map[string]float64{
	// OpenAI
	"gpt-4o":        0.00000625,
	"gpt-4o-mini":   0.000000375,
	"gpt-4-turbo":   0.00002,
	"gpt-3.5-turbo": 0.000001,

	// Anthropic
	"claude-3-5-sonnet-20241022": 0.000009,
	"claude-3-5-haiku-latest":    0.0000024,
	"claude-3-haiku-20240307":    0.00000075,

	// Google
	"gemini-1.5-pro":   0.000003125,
	"gemini-1.5-flash": 0.0000001875,
}

// fallbackCostPerToken is used for models missing from the table so a
// new model name never silently produces free conversations.
const fallbackCostPerToken = 0.00001

// costPerToken returns the per-token price for a model.
func costPerToken(model string) float64 {
	if price, ok := defaultCostPerToken[model]; ok {
		return price
	}
	return fallbackCostPerToken
}
