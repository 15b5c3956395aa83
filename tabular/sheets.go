package tabular

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrSpreadsheetURL is returned for URLs that do not name a spreadsheet.
var ErrSpreadsheetURL = errors.New("not a spreadsheet URL")

var spreadsheetID = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetIDFromURL extracts the id from a spreadsheet URL. A bare id is
// returned unchanged.
func SpreadsheetIDFromURL(raw string) (string, error) {
	if m := spreadsheetID.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if raw != "" && !strings.ContainsAny(raw, "/:?#") {
		return raw, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSpreadsheetURL, raw)
}

// SheetsReader reads the values of one sheet of a remote spreadsheet.
type SheetsReader struct {
	svc           *sheets.Service
	SpreadsheetID string
	// Sheet is the sheet title; empty selects the first sheet.
	Sheet string
}

// NewSheetsReader creates a reader. Authorization comes from opts, usually
// option.WithTokenSource.
func NewSheetsReader(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*SheetsReader, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsReader{svc: svc, SpreadsheetID: spreadsheetID, Sheet: sheet}, nil
}

func (r *SheetsReader) Read(ctx context.Context) ([][]string, error) {
	sheet := r.Sheet
	if sheet == "" {
		first, err := r.firstSheet(ctx)
		if err != nil {
			return nil, err
		}
		sheet = first
	}

	rangeName := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	resp, err := r.svc.Spreadsheets.Values.Get(r.SpreadsheetID, rangeName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, ErrEmpty
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				rows[i][j] = fmt.Sprint(v)
			}
		}
	}
	return rows, nil
}

func (r *SheetsReader) firstSheet(ctx context.Context) (string, error) {
	ss, err := r.svc.Spreadsheets.Get(r.SpreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", ErrEmpty
	}
	return ss.Sheets[0].Properties.Title, nil
}
