package extract

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
)

// CoerceLists replaces list fields submitted as text with the array they
// spell out. Strings that look like an array ("[...]") are parsed strictly
// first, then with a repair pass that also accepts single quotes. A string
// that still does not yield an array is kept as typed. values is modified
// in place.
func CoerceLists(values model.Values, lists []ListField) {
	for _, lf := range lists {
		s, ok := values[lf.Name].(string)
		if !ok {
			continue
		}
		text := strings.TrimSpace(s)
		if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
			continue
		}
		if arr, ok := decodeArray(text); ok {
			values[lf.Name] = arr
			continue
		}
		repaired, err := jsonrepair.RepairJSON(text)
		if err == nil {
			if arr, ok := decodeArray(repaired); ok {
				values[lf.Name] = arr
				continue
			}
		}
		zap.L().Warn("extract: list field kept as text",
			zap.String("field", lf.Name),
			zap.Error(err),
		)
	}
}

func decodeArray(text string) ([]any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var arr []any
	if err := dec.Decode(&arr); err != nil || dec.More() || arr == nil {
		return nil, false
	}
	return arr, true
}
