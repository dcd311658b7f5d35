// Package metrics exposes the Prometheus instrumentation for the proxy
// data plane.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmlab_proxy_requests_total",
		Help: "Proxied requests by provider, upstream status, and cache outcome.",
	}, []string{"provider", "status", "cache"})

	proxyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmlab_proxy_request_duration_seconds",
		Help:    "End-to-end proxy latency by provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	tokensMetered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmlab_tokens_total",
		Help: "Metered tokens by provider and direction.",
	}, []string{"provider", "direction"})

	costMetered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmlab_cost_usd_total",
		Help: "Metered spend in USD by provider.",
	}, []string{"provider"})
)

func RecordRequest(provider string, status int, cacheHit bool) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	proxyRequests.WithLabelValues(provider, strconv.Itoa(status), cache).Inc()
}

func ObserveLatency(provider string, d time.Duration) {
	proxyLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func RecordUsage(provider string, inputTokens, outputTokens int, costUSD float64) {
	tokensMetered.WithLabelValues(provider, "input").Add(float64(inputTokens))
	tokensMetered.WithLabelValues(provider, "output").Add(float64(outputTokens))
	costMetered.WithLabelValues(provider).Add(costUSD)
}
