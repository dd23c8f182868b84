package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/recipe"
)

func mustRecipe(t *testing.T, source, body string) *model.Recipe {
	t.Helper()
	r, err := recipe.Parse([]byte(body))
	require.NoError(t, err)
	r.Source = source
	return r
}

func TestBuild_FormatsValues(t *testing.T) {
	r := mustRecipe(t, "rab.pdf", `{
		"google_doc_id": "  doc-1 ",
		"placeholders": {"Nama": "nama", "Jumlah": null, "Kosong": null, "Total_CALCULATED": "Jumlah * 1.5"},
		"examples": {}
	}`)
	store := model.Values{
		"Nama":   "Pengadaan Laptop",
		"Jumlah": json.Number("17500000"),
		"Total":  1234567.5,
		"Kosong": nil,
		"Extra":  "not in recipe",
	}

	b := Build(store, []*model.Recipe{r})
	require.Len(t, b.Documents, 1)
	assert.Empty(t, b.Skipped)

	doc := b.Documents[0]
	assert.Equal(t, "doc-1", doc.TargetID)
	assert.Equal(t, "rab.pdf", doc.Source)
	assert.Equal(t, map[string]any{
		"Nama":   "Pengadaan Laptop",
		"Jumlah": "17.500.000",
		"Total":  "1.234.567,50",
	}, doc.Data)
}

func TestBuild_DerivedOnly(t *testing.T) {
	r := mustRecipe(t, "a.pdf", `{"google_doc_id": "d", "placeholders": {"Total_CALCULATED": "A + B"}, "examples": {}}`)
	b := Build(model.Values{"Total": 1234567.5}, []*model.Recipe{r})
	require.Len(t, b.Documents, 1)
	assert.Equal(t, map[string]any{"Total": "1.234.567,50"}, b.Documents[0].Data)
}

func TestBuild_SentinelPassesThrough(t *testing.T) {
	r := mustRecipe(t, "a.pdf", `{"google_doc_id": "d", "placeholders": {"Total_CALCULATED": "A + B"}, "examples": {}}`)
	sentinel := "ERROR_MISSING_VARS: 'A' (not found)"
	b := Build(model.Values{"Total": sentinel}, []*model.Recipe{r})
	assert.Equal(t, sentinel, b.Documents[0].Data["Total"])
}

func TestBuild_SkipsInvalidTargets(t *testing.T) {
	good := mustRecipe(t, "good.pdf", `{"google_doc_id": "doc-ok", "placeholders": {"A": null}, "examples": {}}`)
	missing := mustRecipe(t, "missing.pdf", `{"placeholders": {"A": null}, "examples": {}}`)
	blank := mustRecipe(t, "blank.pdf", `{"google_doc_id": "   ", "placeholders": {}, "examples": {}}`)
	numeric := mustRecipe(t, "numeric.pdf", `{"google_doc_id": 42, "placeholders": {}, "examples": {}}`)

	b := Build(model.Values{"A": 1}, []*model.Recipe{missing, good, blank, numeric, nil})

	require.Len(t, b.Documents, 1)
	assert.Equal(t, "doc-ok", b.Documents[0].TargetID)
	assert.Equal(t, "1", b.Documents[0].Data["A"])

	require.Len(t, b.Skipped, 3)
	assert.Equal(t, "missing.pdf", b.Skipped[0].Source)
	assert.Equal(t, "missing target id", b.Skipped[0].Reason)
	assert.Equal(t, "empty target id", b.Skipped[1].Reason)
	assert.Equal(t, "numeric.pdf", b.Skipped[2].Source)
	assert.Contains(t, b.Skipped[2].Reason, "float64")
}

func TestBatch_JSON(t *testing.T) {
	b := Batch{Documents: []Document{{TargetID: "d", Data: map[string]any{"A": "1"}, Source: "x.pdf"}}}
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":[{"google_doc_id":"d","data_to_fill":{"A":"1"}}]}`, string(out))
}

func TestBuild_NoRecipes(t *testing.T) {
	b := Build(model.Values{}, nil)
	assert.NotNil(t, b.Documents)
	assert.Empty(t, b.Documents)
}
