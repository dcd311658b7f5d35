package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/llmlab/llmlab/internal/models"
)

const anthropicVersion = "2023-06-01"

// Anthropic forwards to the Anthropic Messages API. The credential travels
// in x-api-key; streams report input tokens in the message_start event and
// output tokens in the final message_delta.
type Anthropic struct {
	transport
}

func NewAnthropic(baseURL string, timeout time.Duration) *Anthropic {
	return &Anthropic{transport: newTransport(baseURL, timeout)}
}

func (p *Anthropic) Name() string { return models.ProviderAnthropic }

func (p *Anthropic) DefaultModel() string { return "claude-3-5-haiku-20241022" }

func (p *Anthropic) inject(secret string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("x-api-key", secret)
		if req.Header.Get("anthropic-version") == "" {
			req.Header.Set("anthropic-version", anthropicVersion)
		}
		if req.Body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
}

func (p *Anthropic) Forward(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (*UpstreamResponse, error) {
	return p.forward(ctx, method, p.baseURL+upstreamPath, header, body, p.inject(secret))
}

func (p *Anthropic) Stream(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (<-chan StreamEvent, error) {
	return p.stream(ctx, method, p.baseURL+upstreamPath, header, body, p.inject(secret))
}

func (p *Anthropic) ExtractUsage(parsed map[string]interface{}) Usage {
	usage := mapField(parsed, "usage")
	if usage == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  intField(usage, "input_tokens"),
		OutputTokens: intField(usage, "output_tokens"),
	}
}

func (p *Anthropic) ExtractModel(parsed map[string]interface{}, fallback string) string {
	if m := stringField(parsed, "model"); m != "" {
		return m
	}
	return fallback
}

func (p *Anthropic) StreamUsage(events [][]byte) (Usage, string, bool) {
	var usage Usage
	var model string
	var sawOutput, sawInput bool

	for i := len(events) - 1; i >= 0; i-- {
		var parsed map[string]interface{}
		if err := json.Unmarshal(events[i], &parsed); err != nil {
			continue
		}
		switch stringField(parsed, "type") {
		case "message_delta":
			if sawOutput {
				continue
			}
			if u := mapField(parsed, "usage"); u != nil {
				usage.OutputTokens = intField(u, "output_tokens")
				sawOutput = true
			}
		case "message_start":
			if sawInput {
				continue
			}
			msg := mapField(parsed, "message")
			if msg == nil {
				continue
			}
			model = stringField(msg, "model")
			if u := mapField(msg, "usage"); u != nil {
				usage.InputTokens = intField(u, "input_tokens")
				sawInput = true
			}
		}
		if sawInput && sawOutput {
			break
		}
	}

	return usage, model, sawInput || sawOutput
}
