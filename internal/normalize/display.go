package normalize

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// displayTag fixes the document convention: "." groups thousands, "," marks decimals.
var displayTag = language.Indonesian

// Display renders numbers for document templates. Integers become
// "17.500.000", floats become "1.234.567,50". Any other value is returned
// unchanged.
func Display(v any) any {
	p := message.NewPrinter(displayTag)
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return p.Sprintf("%d", x)
	case float32:
		return p.Sprintf("%.2f", float64(x))
	case float64:
		return p.Sprintf("%.2f", x)
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return p.Sprintf("%d", i)
			}
		}
		if f, err := x.Float64(); err == nil {
			return p.Sprintf("%.2f", f)
		}
		return x.String()
	default:
		return v
	}
}
