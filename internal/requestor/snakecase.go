package requestor

import (
	"strings"
	"unicode"
)

// preservedKeys hold their inner keys verbatim rather than snake-cased:
// customerData, sip, env_vars, and args are opaque payloads whose shape
// belongs to the caller, not this transport.
var preservedKeys = map[string]bool{
	"customerData": true,
	"sip":          true,
	"env_vars":     true,
	"args":         true,
}

// SnakeCaseParams recursively converts map/slice keys to snake_case, except
// within the subtree rooted at a preserved key, which is copied unchanged.
func SnakeCaseParams(v any) any {
	return snakeCaseValue(v, false)
}

func snakeCaseValue(v any, preserve bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			newKey := k
			childPreserve := preserve
			if !preserve {
				newKey = toSnakeCase(k)
			}
			if preservedKeys[k] {
				childPreserve = true
			}
			out[newKey] = snakeCaseValue(val, childPreserve)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = snakeCaseValue(val, preserve)
		}
		return out
	default:
		return v
	}
}

// toSnakeCase converts a camelCase or PascalCase identifier to snake_case.
// Consecutive uppercase runs (e.g. an acronym) are treated as one word.
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
