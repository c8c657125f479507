package field

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for _, s := range []string{"text", "number", "boolean", "date", "select", "multiselect", "rating", "user", "json"} {
		ft, err := ParseType(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, ft.String())
	}

	_, err := ParseType("decimal")
	assert.Error(t, err)
}

func TestType_Classes(t *testing.T) {
	assert.True(t, TypeNumber.Numeric())
	assert.True(t, TypeDate.Numeric())
	assert.True(t, TypeRating.Numeric())
	assert.False(t, TypeText.Numeric())

	assert.True(t, TypeText.TextLike())
	assert.True(t, TypeSelect.TextLike())
	assert.False(t, TypeMultiSelect.TextLike())
	assert.False(t, TypeNumber.TextLike())
}

func TestIsNullValue(t *testing.T) {
	assert.True(t, IsNullValue(nil))
	assert.True(t, IsNullValue(""))
	assert.False(t, IsNullValue(0))
	assert.False(t, IsNullValue(false))
	assert.False(t, IsNullValue("x"))
	assert.False(t, IsNullValue([]any{}))
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected float64
		ok       bool
	}{
		{"float64", 1500.0, 1500, true},
		{"int", 42, 42, true},
		{"numeric string", "1500", 1500, true},
		{"float string", "3.14", 3.14, true},
		{"json number", json.Number("7"), 7, true},
		{"garbage string", "not-a-number", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
		{"slice", []any{1}, 0, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := AsNumber(test.in)
			assert.Equal(t, test.ok, ok)
			if ok {
				assert.Equal(t, test.expected, got)
			}
		})
	}
}

func TestAsNumber_Dates(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, ok := AsNumber(ts)
	require.True(t, ok)
	assert.Equal(t, float64(ts.Unix()), got)

	got, ok = AsNumber(ts.Format(time.RFC3339))
	require.True(t, ok)
	assert.Equal(t, float64(ts.Unix()), got)
}

func TestAsStringSlice(t *testing.T) {
	got, ok := AsStringSlice([]any{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	got, ok = AsStringSlice("solo")
	require.True(t, ok)
	assert.Equal(t, []string{"solo"}, got)

	got, ok = AsStringSlice("")
	require.True(t, ok)
	assert.Empty(t, got)

	_, ok = AsStringSlice(42)
	assert.False(t, ok)

	_, ok = AsStringSlice([]any{map[string]any{}})
	assert.False(t, ok)
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "", Display(nil))
	assert.Equal(t, "vip", Display("vip"))
	assert.Equal(t, "1500", Display(1500.0))
	assert.Equal(t, `["a","b"]`, Display([]any{"a", "b"}))
}
