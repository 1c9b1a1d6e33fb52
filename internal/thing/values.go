package thing

import (
	"reflect"
	"strings"
	"unicode"
)

// CloneMap deep-copies nested maps and slices. Scalars are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = cloneValue(v)
	}
	return cpy
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = cloneValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Equal compares two band values. Numbers compare by value regardless of
// their Go type so that JSON round trips (int to float64) are not changes.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, x := range va {
			y, present := vb[k]
			if !present || !Equal(x, y) {
				return false
			}
		}
		return true
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Defaults returns a new map holding base overlaid by every key of over.
// Later maps win.
func Defaults(base map[string]any, over ...map[string]any) map[string]any {
	out := CloneMap(base)
	if out == nil {
		out = make(map[string]any)
	}
	for _, m := range over {
		for k, v := range m {
			out[k] = cloneValue(v)
		}
	}
	return out
}

// IsAnnotation reports whether key is an annotation such as "@timestamp".
// Annotations travel with records but never reach a bridge.
func IsAnnotation(key string) bool {
	return strings.HasPrefix(key, "@")
}

// StripAnnotations returns m without annotation keys.
func StripAnnotations(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !IsAnnotation(k) {
			out[k] = v
		}
	}
	return out
}

// namespaces maps expanded vocabulary prefixes to their compact form.
var namespaces = []struct{ long, short string }{
	{"https://iotdb.org/pub/iot-purpose#", "iot-purpose:"},
	{"https://iotdb.org/pub/iot-unit#", "iot-unit:"},
	{"https://iotdb.org/pub/iot#", "iot:"},
	{"http://schema.org/", "schema:"},
	{"https://schema.org/", "schema:"},
}

// CompactKey rewrites one expanded key to its compact form.
func CompactKey(key string) string {
	for _, ns := range namespaces {
		if rest, ok := strings.CutPrefix(key, ns.long); ok {
			return ns.short + rest
		}
	}
	return key
}

// Compact rewrites expanded keys throughout m, including nested maps.
// String values that are expanded vocabulary terms are compacted too.
func Compact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[CompactKey(k)] = compactValue(v)
	}
	return out
}

func compactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Compact(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = compactValue(elem)
		}
		return cpy
	case string:
		return CompactKey(val)
	default:
		return v
	}
}

// Contains reports whether every key of want is present in have with an
// equal value.
func Contains(have, want map[string]any) bool {
	for k, w := range want {
		h, ok := have[k]
		if !ok || !Equal(h, w) {
			return false
		}
	}
	return true
}

// DashCase normalises a model code: "LampV1", "lamp_v1" and "Lamp V1"
// all become "lamp-v1".
func DashCase(s string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(s))
	lastDash := true
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case unicode.IsUpper(r):
			if i > 0 && !lastDash && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			lastDash = false
		default:
			b.WriteRune(r)
			lastDash = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
