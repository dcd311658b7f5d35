package pricing

// Anthropic pricing per 1M tokens. Updated February 2026.
// Source: https://www.anthropic.com/pricing
var anthropicPricing = map[string]ModelPrice{
	// Claude 3.5 Sonnet (latest)
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-sonnet-latest":   {Input: 3.00, Output: 15.00},
	"claude-3-5-sonnet-20240620": {Input: 3.00, Output: 15.00},
	// Claude 3.5 Haiku
	"claude-3-5-haiku-20241022": {Input: 0.80, Output: 4.00},
	"claude-3-5-haiku-latest":   {Input: 0.80, Output: 4.00},
	// Claude 3 Opus
	"claude-3-opus-20240229": {Input: 15.00, Output: 75.00},
	"claude-3-opus-latest":   {Input: 15.00, Output: 75.00},
	// Claude 3 Sonnet
	"claude-3-sonnet-20240229": {Input: 3.00, Output: 15.00},
	// Claude 3 Haiku
	"claude-3-haiku-20240307": {Input: 0.25, Output: 1.25},
	// Legacy Claude 2
	"claude-2.1": {Input: 8.00, Output: 24.00},
	"claude-2.0": {Input: 8.00, Output: 24.00},
	// Claude Instant
	"claude-instant-1.2": {Input: 0.80, Output: 2.40},
}

var defaultAnthropicPrice = ModelPrice{Input: 3.00, Output: 15.00}
