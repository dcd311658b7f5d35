// Package proxy is the metering data plane: it authenticates the proxy
// key, forwards the request to the provider with the tenant's real
// credential, and meters tokens and cost off the response.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/cache"
	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/pricing"
	"github.com/llmlab/llmlab/internal/providers"
	"github.com/llmlab/llmlab/internal/services/alerts"
	"github.com/llmlab/llmlab/internal/services/anomaly"
	"github.com/llmlab/llmlab/internal/services/hooks"
	"github.com/llmlab/llmlab/internal/services/keys"
	"github.com/llmlab/llmlab/internal/services/tags"
	"go.uber.org/zap"
)

// CacheHeader reports HIT or MISS on unary responses served by the proxy.
const CacheHeader = "X-LLMLab-Cache"

type Pipeline struct {
	db       *gorm.DB
	keys     *keys.Service
	tags     *tags.Service
	cache    cache.Backend
	adapters map[string]providers.Adapter
	budget   *alerts.Watcher
	anomaly  *anomaly.Detector
	hooks    *hooks.Dispatcher

	cacheEnabled bool
	cacheTTL     time.Duration
	maxCapture   int
}

type Options struct {
	DB           *gorm.DB
	Keys         *keys.Service
	Tags         *tags.Service
	Cache        cache.Backend
	Adapters     map[string]providers.Adapter
	Budget       *alerts.Watcher
	Anomaly      *anomaly.Detector
	Hooks        *hooks.Dispatcher
	CacheEnabled bool
	CacheTTL     time.Duration
	MaxCapture   int
}

func NewPipeline(opts Options) *Pipeline {
	if opts.MaxCapture <= 0 {
		opts.MaxCapture = 1 << 20
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Pipeline{
		db:           opts.DB,
		keys:         opts.Keys,
		tags:         opts.Tags,
		cache:        opts.Cache,
		adapters:     opts.Adapters,
		budget:       opts.Budget,
		anomaly:      opts.Anomaly,
		hooks:        opts.Hooks,
		cacheEnabled: opts.CacheEnabled,
		cacheTTL:     opts.CacheTTL,
		maxCapture:   opts.MaxCapture,
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// proxyKeyFrom pulls the proxy key from Authorization: Bearer or x-api-key.
func proxyKeyFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return r.Header.Get("x-api-key")
}

// Handle serves one proxied request. The chi route binds {provider} and a
// trailing wildcard for the upstream path.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !models.ValidProvider(provider) {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	adapter, ok := p.adapters[provider]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	proxyKey := proxyKeyFrom(r)
	if proxyKey == "" {
		writeError(w, http.StatusUnauthorized, "missing proxy key")
		return
	}

	apiKey, secret, err := p.keys.Resolve(proxyKey)
	if err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid proxy key")
			return
		}
		logger.Error("proxy key resolution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if apiKey.Provider != provider {
		writeError(w, http.StatusUnauthorized, "invalid proxy key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	upstreamPath := "/" + chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		upstreamPath += "?" + r.URL.RawQuery
	}

	req := &request{
		provider:     provider,
		adapter:      adapter,
		apiKey:       apiKey,
		secret:       secret,
		body:         body,
		upstreamPath: upstreamPath,
		method:       r.Method,
		header:       r.Header,
		tagNames:     tags.ParseHeader(r.Header.Get(tags.TagsHeader)),
		requestID:    middleware.GetReqID(r.Context()),
	}

	var parsed map[string]interface{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &parsed)
	}
	req.model = requestModel(parsed, upstreamPath, adapter)

	if isStreaming(parsed, upstreamPath) {
		p.handleStream(w, r, req)
		return
	}
	p.handleUnary(w, r, req)
}

type request struct {
	provider     string
	adapter      providers.Adapter
	apiKey       *models.APIKey
	secret       string
	body         []byte
	upstreamPath string
	method       string
	header       http.Header
	model        string
	tagNames     []string
	requestID    string
}

// requestModel infers the target model from the body, falling back to the
// path for Gemini-style /models/{model}:generateContent routes.
func requestModel(parsed map[string]interface{}, upstreamPath string, adapter providers.Adapter) string {
	if parsed != nil {
		if m, ok := parsed["model"].(string); ok && m != "" {
			return m
		}
	}
	if i := strings.Index(upstreamPath, "/models/"); i >= 0 {
		rest := upstreamPath[i+len("/models/"):]
		if j := strings.IndexAny(rest, ":?/"); j >= 0 {
			rest = rest[:j]
		}
		if rest != "" {
			return rest
		}
	}
	return adapter.DefaultModel()
}

func isStreaming(parsed map[string]interface{}, upstreamPath string) bool {
	if parsed != nil {
		if s, ok := parsed["stream"].(bool); ok && s {
			return true
		}
	}
	return strings.Contains(upstreamPath, ":streamGenerateContent")
}

func (p *Pipeline) handleUnary(w http.ResponseWriter, r *http.Request, req *request) {
	start := time.Now()

	if p.cacheEnabled {
		if respBody, meta, ok := p.cache.Get(req.provider, req.body); ok {
			if meta.ContentType != "" {
				w.Header().Set("Content-Type", meta.ContentType)
			}
			w.Header().Set(CacheHeader, "HIT")
			w.WriteHeader(meta.StatusCode)
			_, _ = w.Write(respBody)

			p.record(r.Context(), req, meta.Model, providers.Usage{
				InputTokens:  meta.InputTokens,
				OutputTokens: meta.OutputTokens,
			}, 0, 0, true)
			metrics.RecordRequest(req.provider, meta.StatusCode, true)
			metrics.ObserveLatency(req.provider, time.Since(start))

			logger.Info("proxy cache hit",
				zap.String("provider", req.provider),
				zap.String("model", meta.Model),
				zap.String("request_id", req.requestID))
			return
		}
	}

	resp, err := req.adapter.Forward(r.Context(), req.secret, req.upstreamPath, req.method, req.header, req.body)
	if err != nil {
		logger.Error("upstream request failed",
			zap.String("provider", req.provider),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
		metrics.RecordRequest(req.provider, http.StatusBadGateway, false)
		return
	}
	latency := time.Since(start)

	headers := providers.SanitizeResponseHeaders(resp.Header)
	for k, vs := range headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	// Upstream errors pass through verbatim and are never metered.
	if resp.StatusCode != http.StatusOK {
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
		metrics.RecordRequest(req.provider, resp.StatusCode, false)
		return
	}

	w.Header().Set(CacheHeader, "MISS")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		// Non-JSON success (audio, files); nothing to meter.
		metrics.RecordRequest(req.provider, resp.StatusCode, false)
		return
	}

	usage := req.adapter.ExtractUsage(parsed)
	model := req.adapter.ExtractModel(parsed, req.model)
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		cost := pricing.Cost(req.provider, model, usage.InputTokens, usage.OutputTokens)
		p.record(r.Context(), req, model, usage, cost, latency, false)

		if p.cacheEnabled {
			p.cache.Set(req.provider, req.body, resp.Body, cache.Metadata{
				Provider:     req.provider,
				Model:        model,
				InputTokens:  usage.InputTokens,
				OutputTokens: usage.OutputTokens,
				CostUSD:      cost,
				ContentType:  resp.Header.Get("Content-Type"),
				StatusCode:   resp.StatusCode,
			}, p.cacheTTL)
		}
	}

	metrics.RecordRequest(req.provider, resp.StatusCode, false)
	metrics.ObserveLatency(req.provider, latency)
}

// record writes the usage row, attaches tags, touches the key, and queues
// the post-request budget and anomaly sweeps.
func (p *Pipeline) record(ctx context.Context, req *request, model string, usage providers.Usage, cost float64, latency time.Duration, cacheHit bool) {
	log := &models.UsageLog{
		UserID:       req.apiKey.UserID,
		Provider:     req.provider,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		LatencyMS:    latency.Milliseconds(),
		CacheHit:     cacheHit,
		RequestID:    req.requestID,
	}
	if err := p.db.Create(log).Error; err != nil {
		logger.Error("failed to write usage log", zap.Error(err))
		return
	}

	if len(req.tagNames) > 0 {
		p.tags.AutoAttach(req.apiKey.UserID, log, req.tagNames)
	}
	if !cacheHit {
		if err := p.keys.TouchLastUsed(req.apiKey.ID); err != nil {
			logger.Warn("failed to touch api key", zap.Error(err))
		}
	}

	metrics.RecordUsage(req.provider, usage.InputTokens, usage.OutputTokens, cost)

	userID := req.apiKey.UserID
	p.hooks.Enqueue(func() {
		p.budget.Check(context.Background(), userID)
		p.anomaly.Check(context.Background(), userID)
	})

	logger.Info("request metered",
		zap.String("provider", req.provider),
		zap.String("model", model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", cost),
		zap.Bool("cache_hit", cacheHit),
		zap.String("request_id", req.requestID))
}
