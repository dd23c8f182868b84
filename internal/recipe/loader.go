// Package recipe loads per-document field schemas and merges them into the
// unified field set of a generation session.
package recipe

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/docforge/internal/model"
)

// Top-level recipe keys.
const (
	KeyPlaceholders = "placeholders"
	KeyExamples     = "examples"
	KeyTargetID     = "google_doc_id"
)

var (
	// ErrRecipeNotFound is returned when the recipe file does not exist.
	ErrRecipeNotFound = eris.New("recipe: not found")
	// ErrRecipeInvalid is returned for malformed recipes or recipes missing a required key.
	ErrRecipeInvalid = eris.New("recipe: invalid")
)

// Path returns the recipe location for a template file: the template's
// extension replaced with ".json".
func Path(templatePath string) string {
	return strings.TrimSuffix(templatePath, filepath.Ext(templatePath)) + ".json"
}

// Load reads the recipe that belongs to templatePath.
func Load(templatePath string) (*model.Recipe, error) {
	path := Path(templatePath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrRecipeNotFound, "%s", path)
		}
		return nil, eris.Wrapf(err, "recipe: read %s", path)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "recipe: %s", filepath.Base(path))
	}
	r.Source = templatePath
	return r, nil
}

// Parse decodes a recipe document. Key order of placeholders and examples is
// preserved because it decides calculation order.
func Parse(data []byte) (*model.Recipe, error) {
	if !gjson.ValidBytes(data) {
		return nil, eris.Wrap(ErrRecipeInvalid, "malformed JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, eris.Wrap(ErrRecipeInvalid, "document is not an object")
	}

	placeholders := doc.Get(KeyPlaceholders)
	if !placeholders.Exists() || !placeholders.IsObject() {
		return nil, eris.Wrapf(ErrRecipeInvalid, "missing %q object", KeyPlaceholders)
	}
	examples := doc.Get(KeyExamples)
	if !examples.Exists() || !examples.IsObject() {
		return nil, eris.Wrapf(ErrRecipeInvalid, "missing %q object", KeyExamples)
	}

	r := &model.Recipe{Fields: []model.FieldSpec{}, Examples: []model.Example{}}
	if target := doc.Get(KeyTargetID); target.Exists() {
		r.TargetID = target.Value()
	}

	placeholders.ForEach(func(key, value gjson.Result) bool {
		r.Fields = append(r.Fields, fieldSpec(key.String(), value))
		return true
	})
	examples.ForEach(func(key, value gjson.Result) bool {
		r.Examples = append(r.Examples, model.Example{
			Name:  key.String(),
			Value: json.RawMessage(value.Raw),
		})
		return true
	})
	return r, nil
}

func fieldSpec(name string, value gjson.Result) model.FieldSpec {
	f := model.FieldSpec{Name: name, Raw: json.RawMessage(value.Raw)}

	if model.IsDerivedName(name) {
		f.Kind = model.FieldDerived
		if value.Type == gjson.String {
			f.Formula = value.String()
		}
		return f
	}

	// Object specs carry the instruction (or numeric default) under "instruction".
	spec := value
	if value.IsObject() {
		spec = value.Get("instruction")
	}

	switch spec.Type {
	case gjson.String:
		f.Kind = model.FieldText
		f.Instruction = spec.String()
	case gjson.Null:
		f.Kind = model.FieldNumeric
	case gjson.Number:
		f.Kind = model.FieldNumeric
		f.Default = json.Number(spec.Raw)
	default:
		// Arrays and booleans are edited as text.
		f.Kind = model.FieldText
	}
	return f
}
