package conv

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{7, 7, true},
		{int64(-3), -3, true},
		{json.Number("0.25"), 0.25, true},
		{json.Number("abc"), 0, false},
		{true, 1, true},
		{false, 0, true},
		{"1.0", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}

func TestTryParseNumeric(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind NumericKind
		want float64
	}{
		{"number", 52.0, NumericParsed, 52},
		{"numeric string", " 1.5 ", NumericParsed, 1.5},
		{"exponent", "1e3", NumericParsed, 1000},
		{"json number", json.Number("120"), NumericParsed, 120},
		{"text", "high", NumericOriginal, 0},
		{"underscore groups", "1_000", NumericParsed, 1000},
		{"underscore in fraction", "0.000_5", NumericParsed, 0.0005},
		{"leading underscore", "_1", NumericOriginal, 0},
		{"trailing underscore", "1_", NumericOriginal, 0},
		{"double underscore", "1__0", NumericOriginal, 0},
		{"underscore next to point", "1_.5", NumericOriginal, 0},
		{"hex float", "0x1p-2", NumericOriginal, 0},
		{"signed hex", "-0X10", NumericOriginal, 0},
		{"infinity string", "inf", NumericOriginal, 0},
		{"nan string", "NaN", NumericOriginal, 0},
		{"inf", math.Inf(1), NumericOriginal, 0},
		{"nil", nil, NumericMissing, 0},
		{"slice", []int{1}, NumericOriginal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := TryParseNumeric(tt.in)
			assert.Equal(t, tt.kind, n.Kind)
			assert.Equal(t, tt.want, n.Value)
			assert.Equal(t, tt.kind == NumericParsed, n.Ok())
			if tt.kind == NumericOriginal {
				assert.Equal(t, tt.in, n.Raw)
			}
		})
	}
	assert.Equal(t, "original", NumericOriginal.String())
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Empty(t, SortedKeys(map[string]int(nil)))
}
