package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is the output document. Columns and rows are 1-based.
type Workbook interface {
	NewSheet(name string) error
	SheetNames() []string
	SetCell(sheet string, col, row int, value any) error
	// SetRange writes values as a block whose top-left cell is (col, row).
	SetRange(sheet string, col, row int, values [][]any) error
	SaveAs(path string) error
	Close() error
}

// ErrNoSheet is returned when writing to a sheet that does not exist.
var ErrNoSheet = errors.New("no such sheet")

// ExcelWorkbook is a Workbook backed by an .xlsx file.
type ExcelWorkbook struct {
	f *excelize.File
}

// NewExcelWorkbook creates a workbook whose only sheet is named first.
func NewExcelWorkbook(first string) (*ExcelWorkbook, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), first); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet %q: %w", first, err)
	}
	return &ExcelWorkbook{f: f}, nil
}

func (w *ExcelWorkbook) NewSheet(name string) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", name, err)
	}
	return nil
}

func (w *ExcelWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *ExcelWorkbook) SetCell(sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return w.f.SetCellValue(sheet, cell, value)
}

func (w *ExcelWorkbook) SetRange(sheet string, col, row int, values [][]any) error {
	for i, r := range values {
		cell, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return err
		}
		line := r
		if err := w.f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// SaveAs writes the workbook, creating the parent directory if needed.
func (w *ExcelWorkbook) SaveAs(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *ExcelWorkbook) Close() error {
	return w.f.Close()
}

type cellKey struct {
	col, row int
}

// MemoryWorkbook keeps cells in memory for tests.
type MemoryWorkbook struct {
	names []string
	cells map[string]map[cellKey]any
	// Saved lists the paths passed to SaveAs.
	Saved  []string
	Closed int
}

// NewMemoryWorkbook creates a workbook whose only sheet is named first.
func NewMemoryWorkbook(first string) *MemoryWorkbook {
	return &MemoryWorkbook{
		names: []string{first},
		cells: map[string]map[cellKey]any{first: {}},
	}
}

func (w *MemoryWorkbook) NewSheet(name string) error {
	for _, n := range w.names {
		if strings.EqualFold(n, name) {
			return fmt.Errorf("sheet %q already exists", name)
		}
	}
	w.names = append(w.names, name)
	w.cells[name] = map[cellKey]any{}
	return nil
}

func (w *MemoryWorkbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

func (w *MemoryWorkbook) SetCell(sheet string, col, row int, value any) error {
	cells, ok := w.cells[sheet]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSheet, sheet)
	}
	if col < 1 || row < 1 {
		return fmt.Errorf("invalid cell (%d, %d)", col, row)
	}
	cells[cellKey{col, row}] = value
	return nil
}

func (w *MemoryWorkbook) SetRange(sheet string, col, row int, values [][]any) error {
	for i, r := range values {
		for j, v := range r {
			if err := w.SetCell(sheet, col+j, row+i, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *MemoryWorkbook) SaveAs(path string) error {
	w.Saved = append(w.Saved, path)
	return nil
}

func (w *MemoryWorkbook) Close() error {
	w.Closed++
	return nil
}

// Cell returns the value at (col, row), or nil when it was never written.
func (w *MemoryWorkbook) Cell(sheet string, col, row int) any {
	return w.cells[sheet][cellKey{col, row}]
}

// Written reports whether (col, row) was written, even with an empty value.
func (w *MemoryWorkbook) Written(sheet string, col, row int) bool {
	_, ok := w.cells[sheet][cellKey{col, row}]
	return ok
}
