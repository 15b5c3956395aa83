// Package rows turns raw tabular source data into records that remember
// their original row number.
//
// The row number is the only key that ties a result back to the source.
// It is captured once, when the record is built, and never recomputed from a
// filtered or reordered view.
package rows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/newsharvest/window"
)

// Errors describing rows left out of the index.
var (
	ErrNoRows     = errors.New("source has no data rows")
	ErrMissingURL = errors.New("missing or unsupported URL")
	ErrBadDate    = errors.New("unrecognized publication date")
)

// Layout says which columns hold what. Column indexes are 0-based.
type Layout struct {
	URLColumn   int      `yaml:"url_column"`
	DateColumn  int      `yaml:"date_column"`
	URLPrefixes []string `yaml:"url_prefixes"`
}

// DefaultLayout reads dates from column C and URLs from column D.
func DefaultLayout() Layout {
	return Layout{
		URLColumn:   3,
		DateColumn:  2,
		URLPrefixes: []string{"http"},
	}
}

// dateLayouts are tried in order. Layouts without a year take it from the
// reference time.
var dateLayouts = []struct {
	format  string
	hasYear bool
}{
	{"2006/1/2 15:04:05", true},
	{"2006/1/2 15:04", true},
	{"1/2 15:04", false},
}

// Record is one source row that carries a URL.
type Record struct {
	URL            string
	RawPublication string
	// PublishedAt is nil when the date cell is empty.
	PublishedAt *time.Time
	// Columns are the original cells of the row.
	Columns []string
	// RowPosition is the 1-based row number in the source, header included.
	RowPosition int
}

// Column returns cell i of the original row, or "" when the row is shorter.
func (r Record) Column(i int) string {
	if i < 0 || i >= len(r.Columns) {
		return ""
	}
	return r.Columns[i]
}

// RowError describes a row that was left out of the index.
type RowError struct {
	RowPosition int
	Value       string
	Err         error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v: %q", e.RowPosition, e.Err, e.Value)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Index holds the parsed source.
type Index struct {
	// Rows is the raw source, header included.
	Rows    [][]string
	Records []Record
	// Skipped lists rows with a URL whose date could not be read.
	Skipped []*RowError
	// Ignored lists rows without an acceptable URL, such as blank or
	// section rows.
	Ignored []*RowError
}

// Build indexes raw, whose first row is a header. Rows without an
// acceptable URL go to Ignored and rows whose non-empty date cannot be
// parsed go to Skipped. Dates are read in now's location.
func Build(raw [][]string, layout Layout, now time.Time) *Index {
	idx := &Index{Rows: raw}
	if len(raw) < 2 {
		return idx
	}

	for i, row := range raw[1:] {
		pos := i + 2

		url := cell(row, layout.URLColumn)
		if !hasPrefix(url, layout.URLPrefixes) {
			idx.Ignored = append(idx.Ignored, &RowError{RowPosition: pos, Value: url, Err: ErrMissingURL})
			continue
		}

		rawDate := strings.TrimSpace(cell(row, layout.DateColumn))
		rec := Record{
			URL:            url,
			RawPublication: rawDate,
			Columns:        row,
			RowPosition:    pos,
		}

		if rawDate != "" {
			t, ok := parseDate(rawDate, now)
			if !ok {
				idx.Skipped = append(idx.Skipped, &RowError{RowPosition: pos, Value: rawDate, Err: ErrBadDate})
				continue
			}
			rec.PublishedAt = &t
		}

		idx.Records = append(idx.Records, rec)
	}

	return idx
}

// InScope returns the records published inside w, in source order.
func (idx *Index) InScope(w window.Window) []Record {
	var out []Record
	for _, rec := range idx.Records {
		if w.ContainsTime(rec.PublishedAt) {
			out = append(out, rec)
		}
	}
	return out
}

// Width returns the number of header columns.
func (idx *Index) Width() int {
	if len(idx.Rows) == 0 {
		return 0
	}
	return len(idx.Rows[0])
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func hasPrefix(s string, prefixes []string) bool {
	if s == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func parseDate(s string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.format, s, loc)
		if err != nil {
			continue
		}
		if !l.hasYear {
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}
