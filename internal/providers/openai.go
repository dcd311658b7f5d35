package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/llmlab/llmlab/internal/models"
)

// OpenAI forwards to the OpenAI REST API. The credential travels as a
// Bearer token; usage is reported under "usage" with prompt/completion
// token counts, and streams carry a final usage chunk when the caller
// opts in via stream_options.
type OpenAI struct {
	transport
}

func NewOpenAI(baseURL string, timeout time.Duration) *OpenAI {
	return &OpenAI{transport: newTransport(baseURL, timeout)}
}

func (p *OpenAI) Name() string { return models.ProviderOpenAI }

func (p *OpenAI) DefaultModel() string { return "gpt-4o-mini" }

func (p *OpenAI) inject(secret string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+secret)
		if req.Body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
}

func (p *OpenAI) Forward(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (*UpstreamResponse, error) {
	return p.forward(ctx, method, p.baseURL+upstreamPath, header, body, p.inject(secret))
}

func (p *OpenAI) Stream(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (<-chan StreamEvent, error) {
	return p.stream(ctx, method, p.baseURL+upstreamPath, header, body, p.inject(secret))
}

func (p *OpenAI) ExtractUsage(parsed map[string]interface{}) Usage {
	usage := mapField(parsed, "usage")
	if usage == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  intField(usage, "prompt_tokens"),
		OutputTokens: intField(usage, "completion_tokens"),
	}
}

func (p *OpenAI) ExtractModel(parsed map[string]interface{}, fallback string) string {
	if m := stringField(parsed, "model"); m != "" {
		return m
	}
	return fallback
}

func (p *OpenAI) StreamUsage(events [][]byte) (Usage, string, bool) {
	// The usage chunk is the last meaningful event, so walk backwards.
	for i := len(events) - 1; i >= 0; i-- {
		var parsed map[string]interface{}
		if err := json.Unmarshal(events[i], &parsed); err != nil {
			continue
		}
		usage := mapField(parsed, "usage")
		if usage == nil {
			continue
		}
		return Usage{
			InputTokens:  intField(usage, "prompt_tokens"),
			OutputTokens: intField(usage, "completion_tokens"),
		}, stringField(parsed, "model"), true
	}
	return Usage{}, "", false
}
