package tabular

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateLayout is the text form given to date cells read from workbooks.
const DateLayout = "2006/01/02 15:04:05"

// XLSXReader reads one sheet of a workbook. An empty Sheet selects the
// first sheet.
type XLSXReader struct {
	Path  string
	Sheet string
	// DateColumns are 0-based columns whose numeric cells hold Excel
	// serial dates. They are rendered with DateLayout instead of the
	// cell's display format.
	DateColumns []int
}

func (r *XLSXReader) Read(_ context.Context) ([][]string, error) {
	f, err := excelize.OpenFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmpty
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	if len(r.DateColumns) > 0 {
		raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		r.renderDates(rows, raw)
	}
	return rows, nil
}

// renderDates replaces serial date values in the date columns of rows. The
// header row is left alone.
func (r *XLSXReader) renderDates(rows, raw [][]string) {
	for i := 1; i < len(rows) && i < len(raw); i++ {
		for _, col := range r.DateColumns {
			if col < 0 || col >= len(rows[i]) || col >= len(raw[i]) {
				continue
			}
			serial, err := strconv.ParseFloat(raw[i][col], 64)
			if err != nil {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				continue
			}
			rows[i][col] = t.Round(time.Second).Format(DateLayout)
		}
	}
}
