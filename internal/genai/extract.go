package genai

import (
	"encoding/json"
	"strings"
)

// Extract pulls a parseable JSON document out of raw generator text.
// Model output is not guaranteed to be pure JSON; it may arrive fenced in
// markdown or wrapped in commentary. Strategies are tried in order, most
// strict first, and the first one that yields valid JSON wins:
//
//  1. the trimmed text itself
//  2. the inner text of the first ```-fenced block (optionally tagged json)
//  3. the substring from the first '{' to the last '}'
//
// Returns nil, false when no strategy produces valid JSON. Callers must treat
// that as a generation failure, not retry on their own.
func Extract(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), true
	}

	if inner, ok := fencedBlock(trimmed); ok {
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner), true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}

	return nil, false
}

// fencedBlock returns the trimmed inner text of the first triple-backtick
// block, tolerating an optional language tag on the opening fence.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	rest := s[open+3:]
	// Strip a language tag such as "json" up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || isFenceTag(tag) {
			rest = rest[nl+1:]
		}
	}
	closing := strings.Index(rest, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:closing]), true
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
