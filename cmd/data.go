package main

import (
	"os"

	"github.com/hjson/hjson-go/v4"
	"github.com/rotisserie/eris"
)

// readDataFile reads a JSON or Hjson object. Hjson accepts comments,
// unquoted keys and trailing commas, which suits hand-edited data files.
func readDataFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var out map[string]any
	if err := hjson.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
