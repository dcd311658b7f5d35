// Package providers holds the per-upstream adapters. Each adapter knows
// its base URL, how to inject the tenant's real credential, and where the
// provider reports token usage in unary and streaming responses.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StreamEvent is one frame of a streamed upstream response. The first
// event carries Frame (status + headers); subsequent events carry Chunk
// bytes; a terminal failure carries Err.
type StreamEvent struct {
	Frame *StreamFrame
	Chunk []byte
	Err   error
}

type StreamFrame struct {
	StatusCode int
	Header     http.Header
}

type Adapter interface {
	Name() string
	DefaultModel() string

	// Forward performs a buffered unary call.
	Forward(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (*UpstreamResponse, error)

	// Stream opens the upstream call and yields the header frame followed
	// by raw body chunks. The channel closes when the upstream closes or
	// ctx is cancelled.
	Stream(ctx context.Context, secret, upstreamPath, method string, header http.Header, body []byte) (<-chan StreamEvent, error)

	// ExtractUsage reads token counts from a parsed unary response body.
	ExtractUsage(parsed map[string]interface{}) Usage

	// ExtractModel reads the served model from a parsed response body.
	ExtractModel(parsed map[string]interface{}, fallback string) string

	// StreamUsage recovers usage and model from accumulated SSE events,
	// walking them in reverse. ok is false when no usage was observed.
	StreamUsage(events [][]byte) (usage Usage, model string, ok bool)
}

// Headers never forwarded upstream. Accept-Encoding is also dropped so the
// transport negotiates compression itself and hands us a decoded body.
var strippedRequestHeaders = map[string]bool{
	"host":            true,
	"authorization":   true,
	"x-api-key":       true,
	"content-length":  true,
	"accept-encoding": true,
}

// Headers never returned to the caller; the body may have been
// re-materialized so these no longer describe it.
var strippedResponseHeaders = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
	"content-length":    true,
}

func copyRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vs := range src {
		if strippedRequestHeaders[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	return dst
}

// SanitizeResponseHeaders copies upstream response headers minus the ones
// invalidated by body re-materialization.
func SanitizeResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vs := range src {
		if strippedResponseHeaders[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	return dst
}

// transport is the HTTP plumbing shared by all adapters; auth injection is
// the only per-adapter difference.
type transport struct {
	baseURL string
	client  *http.Client
}

func newTransport(baseURL string, timeout time.Duration) transport {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return transport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t transport) buildRequest(ctx context.Context, method, url string, header http.Header, body []byte, inject func(*http.Request)) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = copyRequestHeaders(header)
	if inject != nil {
		inject(req)
	}
	return req, nil
}

func (t transport) forward(ctx context.Context, method, url string, header http.Header, body []byte, inject func(*http.Request)) (*UpstreamResponse, error) {
	req, err := t.buildRequest(ctx, method, url, header, body, inject)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func (t transport) stream(ctx context.Context, method, url string, header http.Header, body []byte, inject func(*http.Request)) (<-chan StreamEvent, error) {
	req, err := t.buildRequest(ctx, method, url, header, body, inject)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach upstream: %w", err)
	}

	events := make(chan StreamEvent, 8)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		events <- StreamEvent{Frame: &StreamFrame{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
		}}

		buf := make([]byte, 32*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case events <- StreamEvent{Chunk: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					events <- StreamEvent{Err: fmt.Errorf("upstream stream failed: %w", err)}
				}
				return
			}
		}
	}()

	return events, nil
}
