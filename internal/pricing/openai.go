package pricing

// OpenAI pricing per 1M tokens. Updated February 2026.
// Source: https://openai.com/pricing
var openaiPricing = map[string]ModelPrice{
	// GPT-4o (latest)
	"gpt-4o":            {Input: 2.50, Output: 10.00},
	"gpt-4o-2024-11-20": {Input: 2.50, Output: 10.00},
	"gpt-4o-2024-08-06": {Input: 2.50, Output: 10.00},
	"gpt-4o-2024-05-13": {Input: 5.00, Output: 15.00},
	// GPT-4o mini
	"gpt-4o-mini":            {Input: 0.15, Output: 0.60},
	"gpt-4o-mini-2024-07-18": {Input: 0.15, Output: 0.60},
	// GPT-4 Turbo
	"gpt-4-turbo":            {Input: 10.00, Output: 30.00},
	"gpt-4-turbo-2024-04-09": {Input: 10.00, Output: 30.00},
	"gpt-4-turbo-preview":    {Input: 10.00, Output: 30.00},
	"gpt-4-1106-preview":     {Input: 10.00, Output: 30.00},
	"gpt-4-0125-preview":     {Input: 10.00, Output: 30.00},
	// GPT-4 (original)
	"gpt-4":          {Input: 30.00, Output: 60.00},
	"gpt-4-0613":     {Input: 30.00, Output: 60.00},
	"gpt-4-32k":      {Input: 60.00, Output: 120.00},
	"gpt-4-32k-0613": {Input: 60.00, Output: 120.00},
	// GPT-3.5 Turbo
	"gpt-3.5-turbo":          {Input: 0.50, Output: 1.50},
	"gpt-3.5-turbo-0125":     {Input: 0.50, Output: 1.50},
	"gpt-3.5-turbo-1106":     {Input: 1.00, Output: 2.00},
	"gpt-3.5-turbo-instruct": {Input: 1.50, Output: 2.00},
	// o1 reasoning models
	"o1":                     {Input: 15.00, Output: 60.00},
	"o1-2024-12-17":          {Input: 15.00, Output: 60.00},
	"o1-preview":             {Input: 15.00, Output: 60.00},
	"o1-preview-2024-09-12":  {Input: 15.00, Output: 60.00},
	"o1-mini":                {Input: 3.00, Output: 12.00},
	"o1-mini-2024-09-12":     {Input: 3.00, Output: 12.00},
	// o3 mini (latest reasoning)
	"o3-mini":            {Input: 1.10, Output: 4.40},
	"o3-mini-2025-01-31": {Input: 1.10, Output: 4.40},
	// Embeddings
	"text-embedding-3-small": {Input: 0.02, Output: 0.00},
	"text-embedding-3-large": {Input: 0.13, Output: 0.00},
	"text-embedding-ada-002": {Input: 0.10, Output: 0.00},
}

var defaultOpenAIPrice = ModelPrice{Input: 10.00, Output: 30.00}
