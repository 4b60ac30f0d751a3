// Package jsonx recovers JSON values from free-form model output.
package jsonx

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")

// Extract returns the first JSON value it can recover from text. Attempts run
// in order: the whole trimmed text, every fenced code block in order of
// appearance, then the outermost bracket span ([...] when expectArray, {...}
// otherwise). It never fails loudly; ok is false when nothing parsed.
func Extract(text string, expectArray bool) (any, bool) {
	raw, ok := ExtractRaw(text, expectArray)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// ExtractInto decodes the recovered value into v.
func ExtractInto(text string, expectArray bool, v any) bool {
	raw, ok := ExtractRaw(text, expectArray)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func ExtractRaw(text string, expectArray bool) ([]byte, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if raw, ok := tryParse(trimmed); ok {
		return raw, true
	}

	for _, m := range fencePattern.FindAllStringSubmatch(trimmed, -1) {
		if raw, ok := tryParse(strings.TrimSpace(m[1])); ok {
			return raw, true
		}
	}

	open, closing := "{", "}"
	if expectArray {
		open, closing = "[", "]"
	}
	start := strings.Index(trimmed, open)
	end := strings.LastIndex(trimmed, closing)
	if start >= 0 && end > start {
		if raw, ok := tryParse(trimmed[start : end+1]); ok {
			return raw, true
		}
	}

	return nil, false
}

func tryParse(candidate string) ([]byte, bool) {
	if candidate == "" {
		return nil, false
	}
	raw := []byte(candidate)
	if !json.Valid(raw) {
		return nil, false
	}
	return bytes.TrimSpace(raw), true
}
