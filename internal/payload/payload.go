// Package payload assembles the per-document data sent to the rendering service.
package payload

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/normalize"
)

// Document is one rendering request: a target template and the values to fill.
type Document struct {
	TargetID string         `json:"google_doc_id"`
	Data     map[string]any `json:"data_to_fill"`
	// Source is the template the document was built for. Not sent.
	Source string `json:"-"`
}

// Skip records a recipe that produced no document.
type Skip struct {
	Source   string `json:"source"`
	TargetID any    `json:"target_id"`
	Reason   string `json:"reason"`
}

// Batch is the full rendering request plus the recipes left out of it.
type Batch struct {
	Documents []Document `json:"documents"`
	Skipped   []Skip     `json:"-"`
}

// Build produces one Document per recipe with a usable target id. Recipes
// without one are reported in Skipped and do not block the others.
func Build(store model.Values, recipes []*model.Recipe) Batch {
	b := Batch{Documents: []Document{}}
	for _, r := range recipes {
		if r == nil {
			continue
		}
		id, reason := targetID(r.TargetID)
		if reason != "" {
			zap.L().Warn("payload: skipping recipe",
				zap.String("source", r.Source),
				zap.Any("target_id", r.TargetID),
				zap.String("reason", reason),
			)
			b.Skipped = append(b.Skipped, Skip{Source: r.Source, TargetID: r.TargetID, Reason: reason})
			continue
		}
		b.Documents = append(b.Documents, Document{
			TargetID: id,
			Data:     documentData(store, r),
			Source:   r.Source,
		})
	}
	return b
}

func targetID(v any) (string, string) {
	switch x := v.(type) {
	case nil:
		return "", "missing target id"
	case string:
		id := strings.TrimSpace(x)
		if id == "" {
			return "", "empty target id"
		}
		return id, ""
	default:
		return "", fmt.Sprintf("target id is %T, not a string", v)
	}
}

func documentData(store model.Values, r *model.Recipe) map[string]any {
	data := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		if f.IsDerived() {
			base := f.BaseName()
			if v, ok := store[base]; ok {
				data[base] = normalize.Display(v)
			}
			continue
		}
		if v := store[f.Name]; v != nil {
			data[f.Name] = normalize.Display(v)
		}
	}
	return data
}
