package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// CSVReader reads a CSV file. Encoding names a legacy encoding such as
// "shift_jis"; empty means UTF-8.
type CSVReader struct {
	Path     string
	Encoding string
}

func (r *CSVReader) Read(ctx context.Context) ([][]string, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if r.Encoding != "" {
		enc, err := htmlindex.Get(r.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", r.Encoding, err)
		}
		src = enc.NewDecoder().Reader(f)
	}

	return parseCSV(ctx, src)
}

func parseCSV(ctx context.Context, src io.Reader) ([][]string, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	if len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}
