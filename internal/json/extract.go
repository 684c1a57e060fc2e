// Package json pulls JSON documents out of model responses.
//
// Models often wrap JSON in markdown fences or surround it with commentary.
// Extraction strips fences, then falls back to the first balanced object or
// array in the text.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract returns the JSON document contained in response.
func Extract(response string) (string, error) {
	text := stripFences(response)
	if json.Valid([]byte(text)) {
		return text, nil
	}

	for start := 0; start < len(text); {
		i := strings.IndexAny(text[start:], "{[")
		if i < 0 {
			break
		}
		i += start
		if end := balancedEnd(text, i); end > i {
			candidate := text[i : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		start = i + 1
	}

	preview := strings.TrimSpace(response)
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in response: %q", preview)
}

// Decode extracts and unmarshals the JSON document in response.
func Decode[T any](response string) (T, error) {
	var out T
	doc, err := Extract(response)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return out, nil
}

// Object extracts a JSON object. Arrays and scalars are rejected.
func Object(response string) (map[string]any, error) {
	return Decode[map[string]any](response)
}

// stripFences returns the body of the first ``` fenced block, or the
// trimmed input when there is none.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)
	open := strings.Index(trimmed, "```")
	if open < 0 {
		return trimmed
	}
	body := trimmed[open+3:]
	// language tag on the opening fence
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// balancedEnd returns the index of the bracket closing the one at start,
// skipping brackets inside string literals, or -1.
func balancedEnd(text string, start int) int {
	var stack []byte
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
