package repository

import "strings"

var sensitiveKeys = []string{"token", "jwt", "secret", "state", "authorization"}

// Redact returns a copy of m with credential-like values masked. Nested
// maps and slices are walked.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitive(k) {
			out[k] = mask(v)
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = redactValue(item)
		}
		return items
	default:
		return v
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func mask(v any) any {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return nil
		}
		return "****"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
