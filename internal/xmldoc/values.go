package xmldoc

import (
	"math"
	"strconv"
	"strings"
)

// AsList normalizes a value that may hold one element or several into a
// slice. nil and empty leaves yield an empty slice.
func AsList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		if t == "" {
			return nil
		}
	}
	return []any{v}
}

// Lookup walks nested maps by key. It returns nil as soon as a key is
// missing or an intermediate value is not a map.
func Lookup(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if v, ok = m[k]; !ok {
			return nil
		}
	}
	return v
}

// Path is Lookup rooted at the document.
func (d Document) Path(keys ...string) any {
	return Lookup(map[string]any(d), keys...)
}

// String renders a decoded scalar as text. Maps and lists render empty.
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// Float reports a decoded scalar as a number. Strings are parsed, so leaves
// that were kept as text still convert when they hold a number.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int reports a decoded scalar as an integer. Decimals are rejected.
func Int(v any) (int, bool) {
	switch t := v.(type) {
	case int64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
