package gapfill

import (
	"errors"
	"strings"

	"github.com/mentorscore/session-api/internal/normalize"
)

var ErrUnparseable = errors.New("generator response is not a JSON object")

// ParseObject extracts a JSON object from generated text. It tolerates a
// markdown code fence and prose around the object: the first brace-balanced
// object is tried, then the span from the first '{' to the last '}'.
func ParseObject(text string) (map[string]any, error) {
	s := stripFence(strings.TrimSpace(text))

	if obj, ok := decodeObject(s); ok {
		return obj, nil
	}
	if candidate, ok := firstBalancedObject(s); ok {
		if obj, ok := decodeObject(candidate); ok {
			return obj, nil
		}
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(s[start : end+1]); ok {
			return obj, nil
		}
	}
	return nil, ErrUnparseable
}

// decodeObject accepts only a JSON object. DecodeDocument turns a bare null
// into an empty document, which is not a usable reply.
func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	obj, err := normalize.DecodeDocument([]byte(s))
	return obj, err == nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// firstBalancedObject scans for the first '{' and returns the text up to its
// matching '}', skipping braces inside JSON strings.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
