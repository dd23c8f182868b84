package calc

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/normalize"
)

// Sentinel prefixes stored in place of a numeric result.
const (
	ErrPrefixMissing     = "ERROR_MISSING_VARS: "
	ErrPrefixCalculation = "ERROR_CALCULATION: "
)

// IsErrorValue reports whether v is a calculation error sentinel.
func IsErrorValue(v any) bool {
	s, ok := v.(string)
	return ok && (strings.HasPrefix(s, ErrPrefixMissing) || strings.HasPrefix(s, ErrPrefixCalculation))
}

// Engine evaluates derived fields against a value store.
type Engine struct {
	norm *normalize.Normalizer
}

// NewEngine creates an Engine that resolves variables through norm. A nil
// norm uses normalize.Default().
func NewEngine(norm *normalize.Normalizer) *Engine {
	if norm == nil {
		norm = normalize.Default()
	}
	return &Engine{norm: norm}
}

// Run evaluates every derived field of fields in declaration order and writes
// each result (or an error sentinel) into store under the field's base name.
// Later formulas see earlier results; a formula that references a derived
// field declared after it sees the value that name held before Run, if any.
// Run never fails.
func (e *Engine) Run(fields *model.FieldSet, store model.Values) []model.CalcOutcome {
	var outcomes []model.CalcOutcome
	for _, f := range fields.Derived() {
		base := f.BaseName()
		value := e.evaluate(f.Formula, store)
		store[base] = value

		outcome := model.CalcOutcome{Field: base, Formula: f.Formula, Value: value}
		if IsErrorValue(value) {
			outcome.Error = value.(string)
			zap.L().Warn("calc: derived field failed",
				zap.String("field", base),
				zap.String("formula", f.Formula),
				zap.String("error", outcome.Error),
			)
		} else {
			zap.L().Debug("calc: derived field computed",
				zap.String("field", base),
				zap.Any("value", value),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Engine) evaluate(formula string, store model.Values) any {
	expr, err := Parse(formula)
	if err != nil {
		return ErrPrefixCalculation + err.Error()
	}

	names := expr.Names()
	vars := make(map[string]float64, len(names))
	var problems []string
	for _, name := range names {
		raw, ok := store[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("'%s' (not found)", name))
			continue
		}
		num, ok := e.norm.Number(raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("'%s' (invalid value %s)", name, describe(raw)))
			continue
		}
		vars[name] = num
	}
	if len(problems) > 0 {
		return ErrPrefixMissing + strings.Join(problems, ", ")
	}

	result, err := expr.Eval(vars)
	if err != nil {
		return ErrPrefixCalculation + err.Error()
	}
	return result
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
