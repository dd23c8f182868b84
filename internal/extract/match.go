package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// TitleColumn is the spreadsheet column holding project titles.
const TitleColumn = "Title"

const matchPrompt = `You are a project matching assistant. Compare the user's request with the list of project titles below and identify which titles most likely match.

User request:
%q

Project titles from the spreadsheet:
%s

RESPONSE RULES:
1. Respond ONLY with a valid JSON object.
2. The object must have exactly one key: "matches".
3. The value of "matches" must be a LIST of matching titles, written EXACTLY as they appear in the list.
4. If there is no strong match, return an empty list: {"matches": []}.
5. If several titles match strongly, include ALL of them.
6. Do not include explanations or any text outside the JSON object.`

// MatchPrompt renders the spreadsheet matching prompt.
func MatchPrompt(description string, titles []string) string {
	lines := make([]string, len(titles))
	for i, t := range titles {
		lines[i] = "- " + t
	}
	return fmt.Sprintf(matchPrompt, description, strings.Join(lines, "\n"))
}

// ParseMatches reads a matching response and keeps only titles present in
// known, in response order without duplicates. The returned slice is never
// nil; err explains an unusable response.
func ParseMatches(raw string, known []string) ([]string, error) {
	out := []string{}
	text := cleanResponse(raw)
	if text == "" {
		return out, errEmpty
	}

	var resp struct {
		Matches []any `json:"matches"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return out, eris.Wrap(err, "extract: parse matches")
	}
	if resp.Matches == nil {
		return out, eris.New(`extract: matches response lacks a "matches" list`)
	}

	valid := make(map[string]bool, len(known))
	for _, k := range known {
		valid[k] = true
	}
	seen := make(map[string]bool)
	for _, m := range resp.Matches {
		s, ok := m.(string)
		if !ok || !valid[s] || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// Augment appends a spreadsheet row to a description as "column: value"
// lines, in column order. The title column and empty values are left out.
func Augment(description string, columns []string, row map[string]string) string {
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\n--- Additional data from spreadsheet ---")
	for _, col := range columns {
		if strings.EqualFold(col, TitleColumn) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", col, v)
	}
	return b.String()
}
