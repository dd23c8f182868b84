package sheets

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXSource reads a local workbook. An empty Sheet selects the first sheet.
type XLSXSource struct {
	Path  string
	Sheet string
}

// NewXLSXSource creates a source for the workbook at path.
func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{Path: path, Sheet: sheet}
}

// Fetch reads the workbook.
func (s *XLSXSource) Fetch(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := xlsx.OpenFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: open %s", s.Path)
	}

	sheet, err := s.pick(f)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return FromRows(rows), nil
}

func (s *XLSXSource) pick(f *xlsx.File) (*xlsx.Sheet, error) {
	if s.Sheet != "" {
		sheet, ok := f.Sheet[s.Sheet]
		if !ok {
			return nil, eris.Errorf("sheets: sheet %q not found in %s", s.Sheet, s.Path)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("sheets: %s has no sheets", s.Path)
	}
	return f.Sheets[0], nil
}
