package recipe

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docforge/internal/model"
)

func mustParse(t *testing.T, body string) *model.Recipe {
	t.Helper()
	r, err := Parse([]byte(body))
	require.NoError(t, err)
	return r
}

func TestMerge_FirstWins(t *testing.T) {
	a := mustParse(t, `{"placeholders": {"X": "from A", "Y": null}, "examples": {"X": "a"}}`)
	b := mustParse(t, `{"placeholders": {"X": "from B", "Z": null}, "examples": {"X": "b", "Z": 1}}`)

	fields, examples, err := Merge(a, b)
	require.NoError(t, err)

	names := make([]string, 0, fields.Len())
	for _, f := range fields.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"X", "Y", "Z"}, names)

	x, ok := fields.Get("X")
	require.True(t, ok)
	assert.Equal(t, "from A", x.Instruction)

	ex, ok := examples.Get("X")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"a"`), ex.Value)
	assert.Equal(t, 2, examples.Len())
}

func TestMerge_Idempotent(t *testing.T) {
	a := mustParse(t, `{"placeholders": {"X": "A", "Total_CALCULATED": "X + 1"}, "examples": {"X": 1}}`)
	b := mustParse(t, `{"placeholders": {"X": "B", "Y": null}, "examples": {"Y": 2}}`)

	f1, e1, err := Merge(a, b)
	require.NoError(t, err)
	f2, e2, err := Merge(a, b, a)
	require.NoError(t, err)

	assert.Equal(t, f1.Fields, f2.Fields)
	assert.Equal(t, e1.Examples, e2.Examples)
}

func TestMerge_OrderMattersOnSharedKeys(t *testing.T) {
	a := mustParse(t, `{"placeholders": {"X": "A"}, "examples": {}}`)
	b := mustParse(t, `{"placeholders": {"X": "B"}, "examples": {}}`)

	fab, _, err := Merge(a, b)
	require.NoError(t, err)
	fba, _, err := Merge(b, a)
	require.NoError(t, err)

	xa, _ := fab.Get("X")
	xb, _ := fba.Get("X")
	assert.Equal(t, "A", xa.Instruction)
	assert.Equal(t, "B", xb.Instruction)
}

func TestMerge_Derived(t *testing.T) {
	r := mustParse(t, `{"placeholders": {"A": null, "B": null, "Sum_CALCULATED": "A + B"}, "examples": {}}`)
	fields, _, err := Merge(r)
	require.NoError(t, err)
	assert.Len(t, fields.Inputs(), 2)
	require.Len(t, fields.Derived(), 1)
	assert.Equal(t, "A + B", fields.Derived()[0].Formula)
}

func TestMerge_Invalid(t *testing.T) {
	_, _, err := Merge(&model.Recipe{Source: "broken.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecipeInvalid))

	_, _, err = Merge(nil)
	assert.True(t, errors.Is(err, ErrRecipeInvalid))
}

func TestMerge_Empty(t *testing.T) {
	fields, examples, err := Merge()
	require.NoError(t, err)
	assert.Equal(t, 0, fields.Len())
	assert.Equal(t, 0, examples.Len())
}
