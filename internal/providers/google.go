package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/llmlab/llmlab/internal/models"
)

// Google forwards to the Gemini generateContent API. The credential
// travels as a "key" query parameter; usage is reported under
// usageMetadata in every response, including the final streamed event.
type Google struct {
	transport
}

func NewGoogle(baseURL string, timeout time.Duration) *Google {
	return &Google{transport: newTransport(baseURL, timeout)}
}

func (p *Google) Name() string { return models.ProviderGoogle }

func (p *Google) DefaultModel() string { return "gemini-1.5-flash" }

func (p *Google) withKey(upstreamPath, secret string) string {
	sep := "?"
	if strings.Contains(upstreamPath, "?") {
		sep = "&"
	}
	return p.baseURL + upstreamPath + sep + "key=" + url.QueryEscape(secret)
}

func (p *Google) inject() func(*http.Request) {
	return func(req *http.Request) {
		if req.Body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
}

func (p *Google) Forward(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (*UpstreamResponse, error) {
	return p.forward(ctx, method, p.withKey(upstreamPath, secret), header, body, p.inject())
}

func (p *Google) Stream(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (<-chan StreamEvent, error) {
	return p.stream(ctx, method, p.withKey(upstreamPath, secret), header, body, p.inject())
}

func (p *Google) ExtractUsage(parsed map[string]interface{}) Usage {
	meta := mapField(parsed, "usageMetadata")
	if meta == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  intField(meta, "promptTokenCount"),
		OutputTokens: intField(meta, "candidatesTokenCount"),
	}
}

func (p *Google) ExtractModel(parsed map[string]interface{}, fallback string) string {
	if m := stringField(parsed, "modelVersion"); m != "" {
		return m
	}
	return fallback
}

func (p *Google) StreamUsage(events [][]byte) (Usage, string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		var parsed map[string]interface{}
		if err := json.Unmarshal(events[i], &parsed); err != nil {
			continue
		}
		meta := mapField(parsed, "usageMetadata")
		if meta == nil {
			continue
		}
		return Usage{
			InputTokens:  intField(meta, "promptTokenCount"),
			OutputTokens: intField(meta, "candidatesTokenCount"),
		}, stringField(parsed, "modelVersion"), true
	}
	return Usage{}, "", false
}
