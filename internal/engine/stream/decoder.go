// Package stream normalizes the heterogeneous chunk shapes emitted by
// model backends into plain text deltas.
package stream

import (
	"github.com/cloudwego/eino/schema"
)

// Decode extracts the text delta from one raw chunk of backend output.
// Candidate fields are tried in a fixed priority order and the first
// non-empty match wins:
//
//	chunk.text
//	chunk.message.content
//	chunk.choices[0].delta.content
//	chunk.choices[0].text
//	chunk itself, when it is a bare string
//
// Typed *schema.Message chunks from the eino backend decode from their
// Content field. Unrecognized shapes decode to "" and are never an error;
// the orchestrator silently skips them.
func Decode(chunk any) string {
	switch c := chunk.(type) {
	case nil:
		return ""
	case string:
		return c
	case *schema.Message:
		if c == nil {
			return ""
		}
		return c.Content
	case map[string]any:
		return decodeMap(c)
	default:
		return ""
	}
}

func decodeMap(m map[string]any) string {
	if s, ok := m["text"].(string); ok && s != "" {
		return s
	}
	if msg, ok := m["message"].(map[string]any); ok {
		if s, ok := msg["content"].(string); ok && s != "" {
			return s
		}
	}
	if choice, ok := firstChoice(m); ok {
		if delta, ok := choice["delta"].(map[string]any); ok {
			if s, ok := delta["content"].(string); ok && s != "" {
				return s
			}
		}
		// Legacy completion shape.
		if s, ok := choice["text"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstChoice(m map[string]any) (map[string]any, bool) {
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}
