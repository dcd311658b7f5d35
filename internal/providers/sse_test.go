package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSSE(t *testing.T) {
	raw := []byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n")
	events := ParseSSE(raw)
	assert.Len(t, events, 2)
	assert.Equal(t, `{"a":1}`, string(events[0]))
	assert.Equal(t, `{"b":2}`, string(events[1]))
}

func TestParseSSESkipsNonDataLines(t *testing.T) {
	raw := []byte("event: message_start\ndata: {\"type\":\"message_start\"}\n\n: keep-alive\n\nevent: message_delta\ndata: {\"type\":\"message_delta\"}\n\n")
	events := ParseSSE(raw)
	assert.Len(t, events, 2)
	assert.Equal(t, `{"type":"message_start"}`, string(events[0]))
	assert.Equal(t, `{"type":"message_delta"}`, string(events[1]))
}

func TestParseSSEJoinsMultiLineData(t *testing.T) {
	raw := []byte("data: line one\ndata: line two\n\n")
	events := ParseSSE(raw)
	assert.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", string(events[0]))
}

func TestParseSSEHandlesCRLF(t *testing.T) {
	raw := []byte("data: {\"a\":1}\r\n\r\ndata: [DONE]\r\n\r\n")
	events := ParseSSE(raw)
	assert.Len(t, events, 1)
	assert.Equal(t, `{"a":1}`, string(events[0]))
}

func TestParseSSEUnterminatedFinalEvent(t *testing.T) {
	raw := []byte("data: {\"a\":1}")
	events := ParseSSE(raw)
	assert.Len(t, events, 1)
}

func TestParseSSEEmpty(t *testing.T) {
	assert.Empty(t, ParseSSE(nil))
	assert.Empty(t, ParseSSE([]byte("\n\n")))
}
