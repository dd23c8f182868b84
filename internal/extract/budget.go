package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidBudget is returned when the budget response is neither a number nor null.
var ErrInvalidBudget = eris.New("extract: budget response is not a number")

const budgetPrompt = `Analyze the description below to determine the total estimated budget of the main procurement in Rupiah.
Focus on the main budget figure, not the annual budget plan (RKAP) or old contract values.
Calculate when needed (for example unit price multiplied by the number of units).

EXAMPLES:
- Input: "budget 10jt untuk 20 users"
  Output: 200000000
- Input: "total biaya sekitar 500 juta rupiah"
  Output: 500000000
- Input: "harganya 500 ribu per lisensi, kami butuh 10"
  Output: 5000000
- Input: "perpanjangan adobe 17.5 jt"
  Output: 17500000
- Input: "proyek ini tidak ada budgetnya"
  Output: null

User description: %q

OUTPUT RULES:
1. Your response MUST be either the total budget as a NUMBER (for example 17500000) or the word null.
2. Do not include any explanation.
3. Do not include "Rp", "juta", "ribu", dots, commas or ANY currency formatting.
4. Do not explain how you calculated it.
5. Return ONLY the number or null.`

// BudgetPrompt renders the budget analysis prompt for a description.
func BudgetPrompt(description string) string {
	return fmt.Sprintf(budgetPrompt, description)
}

var whitespace = regexp.MustCompile(`\s+`)

// ParseBudget reads a budget analysis response. A "null" or empty response
// yields a nil budget without error; anything else that is not a finite,
// non-negative number is ErrInvalidBudget.
func ParseBudget(raw string) (*float64, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = strings.Trim(text, "`")
	text = whitespace.ReplaceAllString(text, "")
	if text == "" || text == "null" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, eris.Wrapf(ErrInvalidBudget, "%q", raw)
	}
	return &v, nil
}
