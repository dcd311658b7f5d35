package providers

import (
	"bytes"
	"strings"
)

// ParseSSE extracts the data payloads from a raw server-sent-events buffer.
// Multi-line data fields within one event are joined with newlines per the
// event-stream format; the "[DONE]" sentinel is skipped.
func ParseSSE(raw []byte) [][]byte {
	var events [][]byte
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		payload := strings.Join(current, "\n")
		current = current[:0]
		if strings.TrimSpace(payload) == "[DONE]" {
			return
		}
		events = append(events, []byte(payload))
	}

	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			flush()
			continue
		}
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data:"))
		data = bytes.TrimPrefix(data, []byte(" "))
		current = append(current, string(data))
	}
	flush()

	return events
}

func intField(m map[string]interface{}, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func mapField(m map[string]interface{}, key string) map[string]interface{} {
	v, ok := m[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return v
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
