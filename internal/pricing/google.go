package pricing

// Google Gemini pricing per 1M tokens. Updated February 2026.
// Source: https://ai.google.dev/pricing
var googlePricing = map[string]ModelPrice{
	// Gemini 2.0 Flash
	"gemini-2.0-flash":     {Input: 0.10, Output: 0.40},
	"gemini-2.0-flash-001": {Input: 0.10, Output: 0.40},
	// Gemini 1.5 Pro
	"gemini-1.5-pro":     {Input: 1.25, Output: 5.00},
	"gemini-1.5-pro-002": {Input: 1.25, Output: 5.00},
	"gemini-1.5-pro-001": {Input: 1.25, Output: 5.00},
	// Gemini 1.5 Flash
	"gemini-1.5-flash":     {Input: 0.075, Output: 0.30},
	"gemini-1.5-flash-002": {Input: 0.075, Output: 0.30},
	"gemini-1.5-flash-001": {Input: 0.075, Output: 0.30},
	// Gemini 1.5 Flash-8B
	"gemini-1.5-flash-8b":     {Input: 0.0375, Output: 0.15},
	"gemini-1.5-flash-8b-001": {Input: 0.0375, Output: 0.15},
	// Gemini 1.0 Pro
	"gemini-1.0-pro": {Input: 0.50, Output: 1.50},
	"gemini-pro":     {Input: 0.50, Output: 1.50},
	// Embeddings
	"text-embedding-004": {Input: 0.00, Output: 0.00},
}

var defaultGooglePrice = ModelPrice{Input: 1.25, Output: 5.00}
