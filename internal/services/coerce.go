package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BrianStatesThat/thepepassport/internal/db"
)

// Helpers for reading loosely-typed row values. None of them fail; anything
// unexpected yields the zero value.

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case db.Row:
		return m
	}
	return nil
}

// asText returns v when it is a string with non-blank content. The value is
// returned verbatim, not trimmed.
func asText(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func textOr(v interface{}, fallback string) string {
	if s, ok := asText(v); ok {
		return s
	}
	return fallback
}

// firstText returns the first key of m holding non-blank text.
func firstText(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := asText(m[k]); ok {
			return s
		}
	}
	return ""
}

// idString renders scalar ids the way they print in URLs: 5 not 5.000000.
func idString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}

// asFloat coerces numbers and numeric strings. Non-finite results are 0.
func asFloat(v interface{}) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		f, _ = val.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func asBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	}
	return false
}

// asStrings reads an array of strings, skipping non-string items.
func asStrings(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		out := make([]string, 0, len(val))
		return append(out, val...)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64, json.Number, int, int64:
				out = append(out, idString(s))
			}
		}
		return out
	}
	return nil
}

// timestampOr passes non-empty timestamps through untouched.
func timestampOr(v interface{}, fallback string) string {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) != "" {
			return val
		}
	case time.Time:
		if !val.IsZero() {
			return val.UTC().Format(time.RFC3339Nano)
		}
	}
	return fallback
}

func present(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
