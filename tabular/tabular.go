// Package tabular reads the source table of URLs and publication dates.
// Every reader returns the table as rows of strings with the header first.
package tabular

import (
	"context"
	"errors"
)

// ErrEmpty is returned when a source holds no rows at all.
var ErrEmpty = errors.New("source is empty")

// Reader loads a whole table.
type Reader interface {
	Read(ctx context.Context) ([][]string, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) ([][]string, error)

func (f ReaderFunc) Read(ctx context.Context) ([][]string, error) {
	return f(ctx)
}
