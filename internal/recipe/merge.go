package recipe

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/model"
)

// Merge combines the recipes of documents generated together. Recipes are
// visited in order and the first definition of a field or example wins, so
// Merge(A, B, A) equals Merge(A, B).
func Merge(recipes ...*model.Recipe) (*model.FieldSet, *model.ExampleSet, error) {
	fields := model.NewFieldSet()
	examples := model.NewExampleSet()
	for i, r := range recipes {
		if r == nil {
			return nil, nil, eris.Wrapf(ErrRecipeInvalid, "recipe %d is nil", i)
		}
		if r.Fields == nil || r.Examples == nil {
			return nil, nil, eris.Wrapf(ErrRecipeInvalid, "recipe %q lacks %s or %s", r.Source, KeyPlaceholders, KeyExamples)
		}
		for _, f := range r.Fields {
			fields.Add(f)
		}
		for _, e := range r.Examples {
			examples.Add(e)
		}
	}
	return fields, examples, nil
}
