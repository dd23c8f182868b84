package model

import (
	"encoding/json"
	"time"
)

// Stage is a step of the document-generation wizard.
type Stage string

// Wizard stages in the order a session moves through them.
const (
	StageInput          Stage = "input"
	StageDisambiguation Stage = "disambiguation"
	StageVerification   Stage = "verification"
	StageReview         Stage = "review"
	StageSubmitted      Stage = "submitted"
)

// Source is text extracted from one uploaded supporting document.
type Source struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// CalcOutcome records the result of evaluating one derived field.
type CalcOutcome struct {
	Field   string `json:"field"`
	Formula string `json:"formula"`
	Value   any    `json:"value"`
	Error   string `json:"error,omitempty"`
}

// RenderStatus is the per-document outcome reported by the rendering service.
type RenderStatus string

// Render outcomes.
const (
	RenderSuccess RenderStatus = "success"
	RenderFailed  RenderStatus = "error"
	RenderSkipped RenderStatus = "skipped"
)

// RenderResult is the outcome of generating one document.
type RenderResult struct {
	Source   string       `json:"source,omitempty"`
	TargetID string       `json:"target_id"`
	Status   RenderStatus `json:"status"`
	FileName string       `json:"file_name,omitempty"`
	DocURL   string       `json:"doc_url,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Session is the explicit state of one document-generation run.
type Session struct {
	ID          string   `json:"id"`
	Stage       Stage    `json:"stage"`
	Description string   `json:"description"`
	Sources     []Source `json:"sources,omitempty"`

	// Budget is nil when the description carried no detectable budget.
	Budget      *float64 `json:"budget,omitempty"`
	Matches     []string `json:"matches,omitempty"`
	TemplateSet string   `json:"template_set,omitempty"`
	Recipes     []Recipe `json:"recipes,omitempty"`

	Extracted       Values `json:"extracted,omitempty"`
	ExtractionError string `json:"extraction_error,omitempty"`
	Values          Values `json:"values,omitempty"`

	Calculations []CalcOutcome  `json:"calculations,omitempty"`
	Results      []RenderResult `json:"results,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RestoreCalculated converts computed results read back from a JSON snapshot
// to float64 again, in Calculations and in Values. Calculation results are
// always floats; a snapshot decoded with UseNumber cannot tell 3000000.0
// from 3000000.
func (s *Session) RestoreCalculated() {
	for i, c := range s.Calculations {
		if c.Error != "" {
			continue
		}
		n, ok := c.Value.(json.Number)
		if !ok {
			continue
		}
		f, err := n.Float64()
		if err != nil {
			continue
		}
		s.Calculations[i].Value = f
		if v, ok := s.Values[c.Field].(json.Number); ok && v == n {
			s.Values[c.Field] = f
		}
	}
}
