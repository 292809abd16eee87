package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeModelJSON decodes a model response into T. Markdown code fences and chatter around a single
// top-level object are tolerated.
func DecodeModelJSON[T any](outputText string) (T, error) {
	var zero T
	s := strings.TrimSpace(outputText)
	if s == "" {
		return zero, io.ErrUnexpectedEOF
	}

	if body, ok := stripFence(s); ok {
		s = body
	}
	var v T
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return zero, fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	var out T
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), &out); err != nil {
		return zero, fmt.Errorf("unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return out, nil
}

// stripFence returns the body of a ```-fenced block (with or without a language tag).
func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return "", false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body), true
}
