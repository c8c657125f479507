// Package template resolves {{dot.path}} placeholders against a nested
// lookup map. Interpolation never fails: placeholders whose path cannot be
// resolved are left verbatim so misconfigured templates are visible in the
// delivered output instead of silently blanked.
package template

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/ruleflow/field"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// Interpolate replaces every {{a.b.c}} placeholder in s with the value found
// at that dot path in ctx. Unresolvable paths are left untouched.
func Interpolate(s string, ctx map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := lookup(ctx, path)
		if !ok {
			return match
		}
		return render(value)
	})
}

// InterpolateValue walks an arbitrary payload value and interpolates every
// string leaf. Maps and slices are copied, other values pass through as-is.
func InterpolateValue(v any, ctx map[string]any) any {
	switch val := v.(type) {
	case string:
		return Interpolate(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = InterpolateValue(inner, ctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = InterpolateValue(inner, ctx)
		}
		return out
	default:
		return v
	}
}

// lookup walks the dot path through nested map[string]any values
func lookup(ctx map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = ctx
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// render formats a resolved value for inclusion in template output.
// Timestamps render as RFC 3339; everything else goes through the field
// package's display form, which JSON-encodes composite values.
func render(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return field.Display(v)
}
