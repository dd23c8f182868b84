// Package normalize converts heterogeneous field values into canonical numbers
// and renders numbers in the display convention expected by document templates.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Policy decides how a literal "." inside a numeric string is treated.
type Policy string

const (
	// PolicyStripDot treats "." as a thousands separator ("10.000.000").
	PolicyStripDot Policy = "strip_dot"
	// PolicyKeepDot leaves "." in place, so dotted strings fail to normalize.
	PolicyKeepDot Policy = "keep_dot"
)

// DefaultCurrencyCodes are the currency markers removed before parsing.
var DefaultCurrencyCodes = []string{"IDR", "Rp"}

// Normalizer cleans values of unknown shape into float64.
type Normalizer struct {
	policy Policy
	noise  *regexp.Regexp
}

// New builds a Normalizer for the given policy. Empty policy means
// PolicyStripDot; nil currency codes mean DefaultCurrencyCodes.
func New(policy Policy, currencyCodes []string) (*Normalizer, error) {
	if policy == "" {
		policy = PolicyStripDot
	}
	if policy != PolicyStripDot && policy != PolicyKeepDot {
		return nil, eris.Errorf("normalize: unknown policy %q", policy)
	}
	if currencyCodes == nil {
		currencyCodes = DefaultCurrencyCodes
	}

	var alts []string
	for _, code := range currencyCodes {
		if code = strings.TrimSpace(code); code != "" {
			alts = append(alts, regexp.QuoteMeta(code))
		}
	}
	alts = append(alts, `\s`)
	if policy == PolicyStripDot {
		alts = append(alts, `\.`)
	}
	alts = append(alts, `,-?$`)

	re, err := regexp.Compile("(" + strings.Join(alts, "|") + ")")
	if err != nil {
		return nil, eris.Wrap(err, "normalize: compile noise pattern")
	}
	return &Normalizer{policy: policy, noise: re}, nil
}

// Default returns a Normalizer with PolicyStripDot and the default currency codes.
func Default() *Normalizer {
	n, err := New(PolicyStripDot, nil)
	if err != nil {
		panic(err)
	}
	return n
}

// Number converts v to float64. Numeric values pass through; strings must be
// a pure digit run once currency codes, whitespace, group separators and a
// trailing ",-" are removed. ok is false when v cannot be normalized, which
// callers treat as missing rather than zero.
func (n *Normalizer) Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		return n.parseString(x)
	default:
		return 0, false
	}
}

func (n *Normalizer) parseString(s string) (float64, bool) {
	cleaned := n.noise.ReplaceAllString(s, "")
	if !isDigits(cleaned) {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
