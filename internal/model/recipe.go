package model

import (
	"encoding/json"
	"strings"
)

// DerivedSuffix marks a recipe field whose value is a formula over other fields.
const DerivedSuffix = "_CALCULATED"

// FieldKind classifies a recipe field by its spec.
type FieldKind string

const (
	// FieldText is a free-text field; its spec is an instruction string.
	FieldText FieldKind = "text"
	// FieldNumeric is a numeric field; its spec is null or a numeric default.
	FieldNumeric FieldKind = "numeric"
	// FieldDerived is computed from other fields; its spec is a formula.
	FieldDerived FieldKind = "derived"
)

// FieldSpec describes one placeholder of a recipe.
type FieldSpec struct {
	Name        string          `json:"name"`
	Kind        FieldKind       `json:"kind"`
	Instruction string          `json:"instruction,omitempty"`
	Formula     string          `json:"formula,omitempty"`
	Default     any             `json:"default,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// IsDerived reports whether the field is computed by the calculation engine.
func (f FieldSpec) IsDerived() bool {
	return f.Kind == FieldDerived
}

// BaseName returns the value-store key the field populates. For derived
// fields this strips DerivedSuffix.
func (f FieldSpec) BaseName() string {
	return BaseName(f.Name)
}

// IsDerivedName reports whether a field name carries DerivedSuffix.
func IsDerivedName(name string) bool {
	return strings.HasSuffix(name, DerivedSuffix)
}

// BaseName strips DerivedSuffix from a field name.
func BaseName(name string) string {
	return strings.TrimSuffix(name, DerivedSuffix)
}

// Example is one example value used to steer the extraction prompt.
type Example struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Recipe is the field schema of a single target document.
type Recipe struct {
	// Source is the template path the recipe was loaded for.
	Source string `json:"source"`
	// TargetID is the opaque handle of the rendering template. Kept raw so
	// the payload builder can report unusable values.
	TargetID any         `json:"target_id"`
	Fields   []FieldSpec `json:"fields"`
	Examples []Example   `json:"examples"`
}

// FieldNames returns the recipe's field names in declaration order.
func (r *Recipe) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldSet is an ordered, deduplicated collection of field specs.
type FieldSet struct {
	Fields []FieldSpec
	index  map[string]int
}

// NewFieldSet creates an empty FieldSet.
func NewFieldSet() *FieldSet {
	return &FieldSet{index: make(map[string]int)}
}

// Add appends f unless a field with the same name is already present.
// Returns false when the field was ignored.
func (s *FieldSet) Add(f FieldSpec) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[f.Name]; ok {
		return false
	}
	s.index[f.Name] = len(s.Fields)
	s.Fields = append(s.Fields, f)
	return true
}

// Get returns the field with the given name.
func (s *FieldSet) Get(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.Fields[i], true
}

// Len returns the number of fields.
func (s *FieldSet) Len() int {
	return len(s.Fields)
}

// Inputs returns the non-derived fields in order.
func (s *FieldSet) Inputs() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if !f.IsDerived() {
			out = append(out, f)
		}
	}
	return out
}

// Derived returns the derived fields in order.
func (s *FieldSet) Derived() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if f.IsDerived() {
			out = append(out, f)
		}
	}
	return out
}

// ExampleSet is an ordered, deduplicated collection of examples.
type ExampleSet struct {
	Examples []Example
	index    map[string]int
}

// NewExampleSet creates an empty ExampleSet.
func NewExampleSet() *ExampleSet {
	return &ExampleSet{index: make(map[string]int)}
}

// Add appends e unless an example with the same name is already present.
func (s *ExampleSet) Add(e Example) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[e.Name]; ok {
		return false
	}
	s.index[e.Name] = len(s.Examples)
	s.Examples = append(s.Examples, e)
	return true
}

// Get returns the example with the given name.
func (s *ExampleSet) Get(name string) (Example, bool) {
	i, ok := s.index[name]
	if !ok {
		return Example{}, false
	}
	return s.Examples[i], true
}

// Len returns the number of examples.
func (s *ExampleSet) Len() int {
	return len(s.Examples)
}

// MarshalJSON renders the examples as a single JSON object, keys in order.
func (s *ExampleSet) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range s.Examples {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		if len(e.Value) == 0 {
			b.WriteString("null")
		} else {
			b.Write(e.Value)
		}
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
