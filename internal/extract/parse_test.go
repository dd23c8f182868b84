package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult_Object(t *testing.T) {
	r := ParseResult(`{"Nama": "Pengadaan Laptop", "Nilai": 15000000, "Rate": 0.11}`)
	require.True(t, r.OK())
	assert.False(t, r.Repaired)
	assert.Equal(t, "Pengadaan Laptop", r.Values["Nama"])
	assert.Equal(t, json.Number("15000000"), r.Values["Nilai"])
	assert.Equal(t, json.Number("0.11"), r.Values["Rate"])
}

func TestParseResult_Fenced(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"json fence", "```json\n{\"A\": 1}\n```"},
		{"bare fence", "```\n{\"A\": 1}\n```"},
		{"surrounding whitespace", "\n\n  {\"A\": 1}  \n"},
		{"prose", "Here is the result:\n{\"A\": 1}\nHope this helps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseResult(tt.raw)
			require.True(t, r.OK(), r.Err)
			assert.Equal(t, json.Number("1"), r.Values["A"])
		})
	}
}

func TestParseResult_Repaired(t *testing.T) {
	r := ParseResult(`{"A": 1, "B": "x",}`)
	require.True(t, r.OK(), r.Err)
	assert.True(t, r.Repaired)
	assert.Equal(t, "x", r.Values["B"])
}

func TestParseResult_Failures(t *testing.T) {
	for _, raw := range []string{"", "   ", "```json\n```", "[1, 2, 3]", "null", "42"} {
		r := ParseResult(raw)
		assert.False(t, r.OK(), "input %q", raw)
		assert.NotEmpty(t, r.Err)
		assert.Contains(t, r.AsMap(), ErrorKey)
		assert.Empty(t, r.Extracted())
	}
}

func TestResult_AsMap(t *testing.T) {
	r := ParseResult(`{"A": "b"}`)
	assert.Equal(t, map[string]any{"A": "b"}, r.AsMap())

	assert.Equal(t, map[string]any{}, Result{}.AsMap())
	assert.Equal(t, map[string]any{ErrorKey: "boom"}, Result{Err: "boom"}.AsMap())
}

func TestResult_ExtractedIsCopy(t *testing.T) {
	r := ParseResult(`{"A": "b"}`)
	got := r.Extracted()
	got["A"] = "changed"
	assert.Equal(t, "b", r.Values["A"])
}

func TestParseResult_EmptyObject(t *testing.T) {
	r := ParseResult(`{}`)
	require.True(t, r.OK())
	assert.Empty(t, r.Values)
}
