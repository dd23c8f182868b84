// Package sheets reads the project spreadsheet used to disambiguate
// requests, either from Google Sheets or from a local .xlsx snapshot.
package sheets

import (
	"context"
	"strings"
)

// Source fetches the spreadsheet as a table.
type Source interface {
	Fetch(ctx context.Context) (*Table, error)
}

// Table is a header row plus data rows keyed by column name.
type Table struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// FromRows builds a Table from raw rows; the first row is the header.
// Blank header cells are dropped, fully empty rows are skipped and short
// rows are padded with empty strings.
func FromRows(rows [][]string) *Table {
	t := &Table{Rows: []map[string]string{}}
	if len(rows) == 0 {
		return t
	}

	idx := make([]int, 0, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		t.Columns = append(t.Columns, h)
		idx = append(idx, i)
	}

	for _, raw := range rows[1:] {
		row := make(map[string]string, len(t.Columns))
		empty := true
		for j, col := range t.Columns {
			var v string
			if i := idx[j]; i < len(raw) {
				v = strings.TrimSpace(raw[i])
			}
			if v != "" {
				empty = false
			}
			row[col] = v
		}
		if !empty {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// Column returns the column name matching name case-insensitively.
func (t *Table) Column(name string) (string, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Values returns the non-empty values of column in row order.
func (t *Table) Values(column string) []string {
	col, ok := t.Column(column)
	if !ok {
		return nil
	}
	var out []string
	for _, r := range t.Rows {
		if v := r[col]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the first row whose column equals value.
func (t *Table) Find(column, value string) (map[string]string, bool) {
	col, ok := t.Column(column)
	if !ok {
		return nil, false
	}
	for _, r := range t.Rows {
		if r[col] == value {
			return r, true
		}
	}
	return nil, false
}
