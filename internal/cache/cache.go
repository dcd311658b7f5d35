// Package cache is the exact-match response cache for the proxy.
// Entries are keyed by SHA-256(provider:body) so identical requests to the
// same provider resolve to the same entry regardless of header noise.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Metadata captured alongside a cached response so a usage log can be
// written for the hit without re-parsing the body.
type Metadata struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	ContentType  string  `json:"content_type"`
	StatusCode   int     `json:"status_code"`
}

type Stats struct {
	Hits    int64   `json:"total_hits"`
	Misses  int64   `json:"total_misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
}

// Backend is the cache contract. Implementations must never fail the
// request: errors degrade to a miss.
type Backend interface {
	Get(provider string, body []byte) ([]byte, *Metadata, bool)
	Set(provider string, body, responseBody []byte, meta Metadata, ttl time.Duration)
	Clear()
	Stats() Stats
}

// Key builds the deterministic cache key for a (provider, body) pair.
func Key(provider string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
