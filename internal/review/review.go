// Package review renders a session as a human-readable summary for the
// review step, as Markdown and as HTML.
package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/normalize"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown summarizes the session: request, budget, template set, the
// values that will be sent and the calculation outcomes.
func Markdown(s *model.Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", s.ID)
	fmt.Fprintf(&b, "**Stage:** %s\n\n", s.Stage)
	if s.TemplateSet != "" {
		fmt.Fprintf(&b, "**Template set:** %s\n\n", s.TemplateSet)
	}
	if s.Budget != nil {
		fmt.Fprintf(&b, "**Budget:** Rp %v\n\n", normalize.Display(int64(*s.Budget)))
	} else {
		b.WriteString("**Budget:** not detected\n\n")
	}

	b.WriteString("## Request\n\n")
	for _, line := range strings.Split(strings.TrimSpace(s.Description), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	b.WriteString("\n")

	if len(s.Sources) > 0 {
		b.WriteString("## Supporting documents\n\n")
		for _, src := range s.Sources {
			fmt.Fprintf(&b, "- %s (%d chars)\n", src.Label, len(src.Text))
		}
		b.WriteString("\n")
	}

	if len(s.Values) > 0 {
		b.WriteString("## Values\n\n| Field | Value |\n|---|---|\n")
		for _, k := range s.Values.Keys() {
			fmt.Fprintf(&b, "| %s | %s |\n", cell(k), cell(displayValue(s.Values[k])))
		}
		b.WriteString("\n")
	}

	if len(s.Calculations) > 0 {
		b.WriteString("## Calculations\n\n| Field | Formula | Result |\n|---|---|---|\n")
		for _, c := range s.Calculations {
			result := displayValue(c.Value)
			if c.Error != "" {
				result = c.Error
			}
			fmt.Fprintf(&b, "| %s | `%s` | %s |\n", cell(c.Field), strings.ReplaceAll(c.Formula, "|", `\|`), cell(result))
		}
		b.WriteString("\n")
	}

	if len(s.Results) > 0 {
		b.WriteString("## Documents\n\n")
		for _, r := range s.Results {
			switch {
			case r.Status == model.RenderSuccess && r.DocURL != "":
				fmt.Fprintf(&b, "- [%s](%s)\n", r.FileName, r.DocURL)
			case r.Status == model.RenderSuccess:
				fmt.Fprintf(&b, "- %s\n", r.FileName)
			default:
				fmt.Fprintf(&b, "- %s **%s**: %s\n", r.TargetID, r.Status, r.Message)
			}
		}
		b.WriteString("\n")
	}

	if len(s.Errors) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// HTML renders the session summary as an HTML fragment.
func HTML(s *model.Session) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(s)), &buf); err != nil {
		return "", eris.Wrap(err, "review: render markdown")
	}
	return buf.String(), nil
}

func displayValue(v any) string {
	switch x := normalize.Display(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case []any, map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", "<br>")
}
