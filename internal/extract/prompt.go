// Package extract builds the prompts sent to the language model and turns
// its responses into field values.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/model"
)

// ListField is a field whose value is an array of uniformly-shaped records.
type ListField struct {
	Name    string   `mapstructure:"name" yaml:"name" json:"name"`
	Columns []string `mapstructure:"columns" yaml:"columns" json:"columns"`
}

// DefaultListFields are the record-list fields used by the stock recipes.
func DefaultListFields() []ListField {
	cols := []string{"NO", "OBJEK", "JUMLAH", "DETAIL"}
	return []ListField{
		{Name: "Bukti_BA", Columns: cols},
		{Name: "Pembelian", Columns: cols},
	}
}

// PromptInput is everything the extraction prompt is built from.
type PromptInput struct {
	Description string
	Supporting  []model.Source
	Fields      *model.FieldSet
	Examples    *model.ExampleSet
	ListFields  []ListField
}

const extractPreamble = `You are a meticulous assistant extracting as much information as possible from text in order to fill several related official documents.

TASK:
Using the primary context and the supporting documents, fill as many of the fields in the JSON format below as you can. The fields are the union of several documents that will be generated together.`

// baseRules are stated in every extraction prompt. The field format leads the
// list and the list-field rule follows the numeric rule.
var baseRules = []string{
	"If you cannot find confident evidence for a field, OMIT that field entirely.",
	"The output MUST be a single valid JSON object.",
	"Do not include explanations or markdown (such as code fences). Output ONLY the JSON object.",
	"Use the field names (keys) exactly as requested.",
	"For numeric fields return NUMBERS (integer or decimal), never strings.",
	"Do not capitalize the start of sentences unless it is an abbreviation, and do not end sentences with a period.",
	"Paraphrase sentence values to avoid copying the context verbatim, except for fields asking for numbers, specific names or titles.",
	"The primary request is the main source of information; use the supporting context only when the primary request lacks the information.",
	`A "\n" in an example marks a line break that is expected in that field.`,
}

// BuildPrompt renders the extraction prompt. Only non-derived fields are
// requested; derived fields are computed after verification.
func BuildPrompt(in PromptInput) (string, error) {
	fields := in.Fields
	if fields == nil {
		fields = model.NewFieldSet()
	}
	examples := in.Examples
	if examples == nil {
		examples = model.NewExampleSet()
	}

	format, err := fieldFormat(fields)
	if err != nil {
		return "", err
	}
	exampleJSON, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "extract: marshal examples")
	}

	var b strings.Builder
	b.WriteString(extractPreamble)
	b.WriteString("\n\nPRIMARY CONTEXT FROM THE USER:\n")
	fmt.Fprintf(&b, "primary request: %q\n", in.Description)
	b.WriteString("supporting context:")
	for _, src := range in.Supporting {
		if strings.TrimSpace(src.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- CONTEXT FROM DOCUMENT '%s' ---\n%s", src.Label, src.Text)
	}
	b.WriteString("\n\nCOMPLETE EXAMPLE OF THE EXPECTED OUTPUT (a union of examples; use it as a reference for style, length and format):\n")
	b.Write(exampleJSON)
	b.WriteString("\n\nRULES:\n")

	rules := make([]string, 0, len(baseRules)+2)
	rules = append(rules, "Focus on filling the fields of this JSON format:\n"+format)
	rules = append(rules, baseRules[:5]...)
	if lr := listRule(fields, in.ListFields); lr != "" {
		rules = append(rules, lr)
	}
	rules = append(rules, baseRules[5:]...)
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String(), nil
}

// fieldFormat renders the non-derived fields as a JSON skeleton, in order.
func fieldFormat(fields *model.FieldSet) (string, error) {
	inputs := fields.Inputs()
	if len(inputs) == 0 {
		return "{}", nil
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range inputs {
		key, err := json.Marshal(f.Name)
		if err != nil {
			return "", eris.Wrapf(err, "extract: marshal field %q", f.Name)
		}
		fmt.Fprintf(&b, "  %s: \"...\"", key)
		if i < len(inputs)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// listRule states the record shape of every configured list field present
// in the field set. It returns "" when none apply.
func listRule(fields *model.FieldSet, lists []ListField) string {
	var parts []string
	for _, lf := range lists {
		if _, ok := fields.Get(lf.Name); !ok {
			continue
		}
		cols := make([]string, len(lf.Columns))
		for i, c := range lf.Columns {
			cols[i] = fmt.Sprintf("%q: ...", c)
		}
		parts = append(parts, fmt.Sprintf("%q MUST be an ARRAY of JSON objects [{%s}]", lf.Name, strings.Join(cols, ", ")))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ", every record with the same keys, even when there is only one record."
}
