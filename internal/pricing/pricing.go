// Package pricing holds the static per-provider price tables. Rates are
// USD per million tokens; updates ship as code changes.
package pricing

import (
	"math"
	"sort"

	"github.com/llmlab/llmlab/internal/models"
)

type ModelPrice struct {
	Input  float64
	Output float64
}

type table struct {
	models      map[string]ModelPrice
	defaultRate ModelPrice
}

var tables = map[string]table{
	models.ProviderOpenAI:    {models: openaiPricing, defaultRate: defaultOpenAIPrice},
	models.ProviderAnthropic: {models: anthropicPricing, defaultRate: defaultAnthropicPrice},
	models.ProviderGoogle:    {models: googlePricing, defaultRate: defaultGooglePrice},
}

// Lookup returns the price for a model, falling back to the provider
// default so newly released models still meter at a plausible rate.
func Lookup(provider, model string) ModelPrice {
	t, ok := tables[provider]
	if !ok {
		return ModelPrice{}
	}
	if p, ok := t.models[model]; ok {
		return p
	}
	return t.defaultRate
}

// Cost prices a call and rounds to six decimal places.
func Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p := Lookup(provider, model)
	cost := float64(inputTokens)*p.Input/1_000_000 + float64(outputTokens)*p.Output/1_000_000
	return Round6(cost)
}

func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Alternative is a cross-provider repricing of the same token counts.
type Alternative struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// Alternatives reprices (inputTokens, outputTokens) against every other
// (provider, model) pair in the tables, cheapest first.
func Alternatives(provider, model string, inputTokens, outputTokens int) []Alternative {
	var alts []Alternative
	for prov, t := range tables {
		for m := range t.models {
			if prov == provider && m == model {
				continue
			}
			alts = append(alts, Alternative{
				Provider:      prov,
				Model:         m,
				EstimatedCost: Cost(prov, m, inputTokens, outputTokens),
			})
		}
	}
	sort.Slice(alts, func(i, j int) bool { return less(alts[i], alts[j]) })
	return alts
}

func less(a, b Alternative) bool {
	if a.EstimatedCost != b.EstimatedCost {
		return a.EstimatedCost < b.EstimatedCost
	}
	if a.Provider != b.Provider {
		return a.Provider < b.Provider
	}
	return a.Model < b.Model
}

// CheapestCost returns the lowest possible cost for the given token counts
// across all known models.
func CheapestCost(inputTokens, outputTokens int) float64 {
	best := math.Inf(1)
	for prov, t := range tables {
		for m := range t.models {
			if c := Cost(prov, m, inputTokens, outputTokens); c < best {
				best = c
			}
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}
