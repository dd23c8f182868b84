package model

import "sort"

// Values is the flat field-name to value store threaded through a session.
// Values are JSON-shaped: string, float64, json.Number, int64, bool, nil,
// []any or map[string]any.
type Values map[string]any

// Clone returns a shallow copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Overlay returns a copy of v with every entry of edits applied on top.
// Edited values always win, including explicit nils.
func (v Values) Overlay(edits Values) Values {
	out := v.Clone()
	for k, val := range edits {
		out[k] = val
	}
	return out
}

// Keys returns the store's keys sorted for stable output.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
