// Package extract recovers a single JSON object from free-form model output
// and validates it against a Schema.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Error kinds reported by Extract.
const (
	KindMalformedJSON   = "malformed-json"
	KindSchemaViolation = "schema-violation"
)

// Error is returned when model output cannot be turned into a valid object.
type Error struct {
	Kind   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "extract: " + e.Kind
	}
	return fmt.Sprintf("extract: %s: %s", e.Kind, e.Detail)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrMalformedJSON)
// works regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedJSON   = &Error{Kind: KindMalformedJSON}
	ErrSchemaViolation = &Error{Kind: KindSchemaViolation}
)

// Object is a decoded JSON object.
type Object map[string]any

// fencePattern matches the first triple-backtick block, optionally tagged json.
var fencePattern = regexp.MustCompile("(?s)```(?:[jJ][sS][oO][nN])?[ \\t]*\\r?\\n?(.*?)```")

// Extract pulls one JSON object out of raw and validates it against schema.
// A nil schema skips validation. Objects carrying "identified": false are
// returned without validation.
func Extract(raw string, schema *Schema) (Object, error) {
	candidate := raw
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}
	candidate = strings.TrimSpace(candidate)

	obj, err := parseObject(candidate)
	if err != nil {
		return nil, err
	}

	if IsNegative(obj) || schema == nil {
		return obj, nil
	}
	if err := validate(obj, schema, ""); err != nil {
		return nil, err
	}
	return obj, nil
}

// IsNegative reports whether obj is an explicit negative identification.
func IsNegative(obj Object) bool {
	v, ok := obj["identified"].(bool)
	return ok && !v
}

// Decode converts obj into a typed value.
func Decode[T any](obj Object) (T, error) {
	var out T
	b, err := json.Marshal(obj)
	if err != nil {
		return out, fmt.Errorf("re-encoding object: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, &Error{Kind: KindSchemaViolation, Detail: err.Error()}
	}
	return out, nil
}

// parseObject tries every balanced {...} span in order and returns the first
// that decodes as an object. A closed span that fails to decode is skipped
// whole, so nothing nested inside it is returned. If no span decodes, the
// first '{' to last '}' span is tried as a last resort.
func parseObject(text string) (Object, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		from := start + 1
		if end := matchBrace(text, start); end > start {
			if obj, ok := decode(text[start : end+1]); ok {
				return obj, nil
			}
			from = end + 1
		}
		next := strings.IndexByte(text[from:], '{')
		if next < 0 {
			break
		}
		start = from + next
	}

	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		if obj, ok := decode(text[first : last+1]); ok {
			return obj, nil
		}
	}
	return nil, &Error{Kind: KindMalformedJSON, Detail: "no JSON object found"}
}

// matchBrace returns the index of the '}' closing the '{' at start, skipping
// braces inside JSON strings. Returns -1 when the span never closes.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decode(s string) (Object, bool) {
	var obj Object
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func validate(obj Object, schema *Schema, path string) error {
	for _, key := range schema.Required {
		if v, ok := obj[key]; !ok || v == nil {
			return &Error{Kind: KindSchemaViolation, Detail: "missing required field " + path + key}
		}
	}
	for key, prop := range schema.Properties {
		v, ok := obj[key]
		if !ok || v == nil || prop == nil {
			continue
		}
		if err := checkType(v, prop, path+key); err != nil {
			return err
		}
	}
	return nil
}

func checkType(v any, schema *Schema, path string) error {
	mismatch := func() error {
		return &Error{Kind: KindSchemaViolation, Detail: fmt.Sprintf("field %s: want %s, got %T", path, schema.Type, v)}
	}
	switch schema.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return mismatch()
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return mismatch()
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return mismatch()
		}
	case "integer":
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return mismatch()
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		if schema.Items != nil {
			for i, item := range arr {
				if err := checkType(item, schema.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case "object":
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		return validate(Object(m), schema, path+".")
	}
	return nil
}
