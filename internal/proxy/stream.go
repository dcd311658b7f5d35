package proxy

import (
	"net/http"
	"time"

	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/internal/pricing"
	"github.com/llmlab/llmlab/internal/providers"
	"go.uber.org/zap"
)

// handleStream relays the upstream SSE stream chunk by chunk while a
// bounded tap accumulates bytes for post-stream usage extraction. The
// client sees every byte immediately; metering happens after the stream
// closes.
func (p *Pipeline) handleStream(w http.ResponseWriter, r *http.Request, req *request) {
	start := time.Now()

	events, err := req.adapter.Stream(r.Context(), req.secret, req.upstreamPath, req.method, req.header, req.body)
	if err != nil {
		logger.Error("upstream stream failed",
			zap.String("provider", req.provider),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
		metrics.RecordRequest(req.provider, http.StatusBadGateway, false)
		return
	}

	flusher, _ := w.(http.Flusher)
	var (
		status     int
		captured   []byte
		truncated  bool
		meterable  bool
		wroteFrame bool
	)

	for ev := range events {
		switch {
		case ev.Frame != nil:
			status = ev.Frame.StatusCode
			meterable = status == http.StatusOK
			for k, vs := range providers.SanitizeResponseHeaders(ev.Frame.Header) {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(status)
			wroteFrame = true
			if flusher != nil {
				flusher.Flush()
			}

		case ev.Err != nil:
			logger.Warn("stream interrupted",
				zap.String("provider", req.provider),
				zap.Error(ev.Err))
			// Headers are already out; nothing to do but stop relaying.

		case len(ev.Chunk) > 0:
			if _, err := w.Write(ev.Chunk); err != nil {
				logger.Warn("client disconnected mid-stream",
					zap.String("provider", req.provider))
				drain(events)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if meterable && !truncated {
				if len(captured)+len(ev.Chunk) > p.maxCapture {
					truncated = true
					captured = nil
				} else {
					captured = append(captured, ev.Chunk...)
				}
			}
		}
	}

	if !wroteFrame {
		writeError(w, http.StatusBadGateway, "upstream request failed")
		metrics.RecordRequest(req.provider, http.StatusBadGateway, false)
		return
	}

	latency := time.Since(start)
	metrics.RecordRequest(req.provider, status, false)
	metrics.ObserveLatency(req.provider, latency)

	if !meterable || len(captured) == 0 {
		return
	}

	usage, model, ok := req.adapter.StreamUsage(providers.ParseSSE(captured))
	if !ok {
		logger.Debug("stream carried no usage data",
			zap.String("provider", req.provider),
			zap.String("request_id", req.requestID))
		return
	}
	if model == "" {
		model = req.model
	}

	cost := pricing.Cost(req.provider, model, usage.InputTokens, usage.OutputTokens)
	p.record(r.Context(), req, model, usage, cost, latency, false)
}

func drain(events <-chan providers.StreamEvent) {
	for range events {
	}
}
