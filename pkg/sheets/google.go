package sheets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleSource reads a range of a Google spreadsheet via the Sheets API.
type GoogleSource struct {
	svc           *gsheets.Service
	spreadsheetID string
	readRange     string
}

// NewGoogleSource creates a Sheets API source. Without opts the service
// authenticates with application default credentials.
func NewGoogleSource(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*GoogleSource, error) {
	if spreadsheetID == "" {
		return nil, eris.New("sheets: spreadsheet id is required")
	}
	if readRange == "" {
		readRange = "A:Z"
	}
	opts = append([]option.ClientOption{option.WithScopes(gsheets.SpreadsheetsReadonlyScope)}, opts...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create service")
	}
	return &GoogleSource{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

// Fetch reads the configured range.
func (s *GoogleSource) Fetch(ctx context.Context) (*Table, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read %s", s.readRange)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		cells := make([]string, len(raw))
		for j, v := range raw {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return FromRows(rows), nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
