package extract

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
)

// ErrorKey is the key under which AsMap reports a failed extraction.
const ErrorKey = "error"

var (
	errEmpty     = eris.New("extract: empty response")
	errNotObject = eris.New("extract: response is not a JSON object")
)

// Result is the outcome of parsing a model response. Exactly one of Values
// and Err is meaningful.
type Result struct {
	Values model.Values
	// Err describes why the response could not be used.
	Err string
	// Repaired is set when the response needed a JSON repair pass.
	Repaired bool
}

// OK reports whether the response yielded a JSON object.
func (r Result) OK() bool {
	return r.Err == ""
}

// AsMap returns the extracted values, or a single-entry map carrying the
// error marker.
func (r Result) AsMap() map[string]any {
	if !r.OK() {
		return map[string]any{ErrorKey: r.Err}
	}
	if r.Values == nil {
		return map[string]any{}
	}
	return r.Values
}

// Extracted returns the values usable as a starting point for verification.
// A failed result degrades to an empty set.
func (r Result) Extracted() model.Values {
	if !r.OK() || r.Values == nil {
		return model.Values{}
	}
	return r.Values.Clone()
}

// ParseResult turns a raw model response into a Result. It never fails:
// unusable responses produce a Result with Err set. A strict parse is tried
// first; malformed JSON gets one repair pass.
func ParseResult(raw string) Result {
	text := cleanResponse(raw)
	if text == "" {
		return Result{Err: errEmpty.Error()}
	}

	values, err := decodeObject(text)
	if err == nil {
		return Result{Values: values}
	}

	repaired, rerr := jsonrepair.RepairJSON(text)
	if rerr != nil {
		zap.L().Debug("extract: json repair failed", zap.Error(rerr))
		return Result{Err: eris.Wrap(err, "extract: parse response").Error()}
	}
	values, rerr = decodeObject(repaired)
	if rerr != nil {
		return Result{Err: eris.Wrap(err, "extract: parse response").Error()}
	}
	return Result{Values: values, Repaired: true}
}

// cleanResponse strips whitespace, markdown fences and any prose around the
// outermost object.
func cleanResponse(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// decodeObject decodes a single JSON object, keeping numbers as json.Number
// so integers and decimals stay distinguishable downstream.
func decodeObject(text string) (model.Values, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, errNotObject
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, eris.New("extract: trailing data after object")
	}
	if out == nil {
		return nil, errNotObject
	}
	return out, nil
}
