package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// IsNullValue reports whether a record value counts as null for condition
// evaluation: absent (nil), JSON null, or an empty string.
func IsNullValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// AsNumber coerces a dynamic record value to a float64 for numeric
// comparison. Strings are parsed; date strings resolve to Unix seconds.
// Returns false for values that cannot be interpreted numerically.
func AsNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case time.Time:
		return float64(val.Unix()), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		// Date fields commonly arrive as RFC 3339 strings
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			return float64(ts.Unix()), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsString coerces a dynamic record value to its string form.
// Composite values (maps, slices) are not stringified.
func AsString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

// AsStringSlice coerces a multiselect value to a slice of strings.
// Scalar string values are treated as a single-element slice.
func AsStringSlice(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := AsString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		if val == "" {
			return nil, true
		}
		return []string{val}, true
	default:
		return nil, false
	}
}

// Display renders any record value for interpolation output
func Display(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := AsString(v); ok {
		return s
	}
	// Fall back to JSON for composite values
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
