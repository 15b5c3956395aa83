// Package pagewalk walks numbered content pages until the content stops
// changing.
//
// Many news sites answer an out-of-range page number with page 1 instead of
// a 404, so "this page looks like the previous one" is the usual end
// signal. The walk is a small state machine driven by an injected fetch
// function, which keeps it testable without a browser.
package pagewalk

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/newsharvest/logger"
)

// DefaultMaxPages bounds a walk when Walker.MaxPages is not set.
const DefaultMaxPages = 100

// Stop records why a walk ended.
type Stop int

const (
	StopNone Stop = iota
	// StopEmpty: a page projected to no items.
	StopEmpty
	// StopRepeated: a page had the same signature as the previous one.
	StopRepeated
	// StopFetchError: fetching or projecting a page failed.
	StopFetchError
	// StopCancelled: the context was cancelled between steps.
	StopCancelled
	// StopMaxPages: the page limit was reached.
	StopMaxPages
)

func (s Stop) String() string {
	switch s {
	case StopEmpty:
		return "empty"
	case StopRepeated:
		return "repeated"
	case StopFetchError:
		return "fetch_error"
	case StopCancelled:
		return "cancelled"
	case StopMaxPages:
		return "max_pages"
	default:
		return "none"
	}
}

// FetchFunc loads page number page (1-based).
type FetchFunc[P any] func(ctx context.Context, page int) (P, error)

// ProjectFunc turns a fetched page into its items.
type ProjectFunc[P, T any] func(page P) ([]T, error)

// SignatureFunc derives the value compared between consecutive pages.
type SignatureFunc[T any] func(items []T) string

// JoinSignature builds a SignatureFunc joining the text of each item with
// newlines.
func JoinSignature[T any](text func(T) string) SignatureFunc[T] {
	return func(items []T) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = text(item)
		}
		return strings.Join(parts, "\n")
	}
}

// Walker holds the capabilities a walk needs.
type Walker[P, T any] struct {
	Fetch     FetchFunc[P]
	Project   ProjectFunc[P, T]
	Signature SignatureFunc[T]

	// MaxPages caps the number of fetched pages. Zero means DefaultMaxPages.
	MaxPages int
	// FetchTimeout bounds each fetch. Zero means no per-fetch timeout.
	FetchTimeout time.Duration

	Logger *logger.Logger
}

// Result is the accumulated outcome of a walk. Items is the concatenation of
// Pages in fetch order.
type Result[T any] struct {
	Items []T
	Pages [][]T
	Stop  Stop
	// Err is the error that ended the walk, if any. It is informational:
	// the accumulated pages are still valid.
	Err error
}

// PageCount returns the number of accepted pages.
func (r Result[T]) PageCount() int {
	return len(r.Pages)
}

type state int

const (
	stateFetching state = iota
	stateProjecting
	stateComparing
	stateDone
)

// Walk runs the fetch/project/compare loop and always returns the pages
// accepted so far.
func (w *Walker[P, T]) Walk(ctx context.Context) Result[T] {
	var (
		res   Result[T]
		page  = 1
		last  string
		doc   P
		batch []T
		st    = stateFetching
	)

	maxPages := w.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	log := w.Logger
	if log == nil {
		log = logger.Nop()
	}

	for st != stateDone {
		switch st {
		case stateFetching:
			if err := ctx.Err(); err != nil {
				res.Stop, res.Err = StopCancelled, err
				st = stateDone
				continue
			}
			if page > maxPages {
				res.Stop = StopMaxPages
				st = stateDone
				continue
			}

			var err error
			doc, err = w.fetch(ctx, page)
			if err != nil {
				res.Stop, res.Err = StopFetchError, err
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					res.Stop = StopCancelled
				}
				st = stateDone
				continue
			}
			st = stateProjecting

		case stateProjecting:
			var err error
			batch, err = w.Project(doc)
			if err != nil {
				res.Stop, res.Err = StopFetchError, err
				st = stateDone
				continue
			}
			st = stateComparing

		case stateComparing:
			if len(batch) == 0 {
				res.Stop = StopEmpty
				st = stateDone
				continue
			}

			sig := w.Signature(batch)
			if sig == last {
				res.Stop = StopRepeated
				st = stateDone
				continue
			}

			log.Debug("page accepted", "page", page, "items", len(batch))
			res.Items = append(res.Items, batch...)
			res.Pages = append(res.Pages, batch)
			last = sig
			page++
			st = stateFetching
		}
	}

	log.Debug("walk finished", "pages", len(res.Pages), "stop", res.Stop.String())
	return res
}

func (w *Walker[P, T]) fetch(ctx context.Context, page int) (P, error) {
	if w.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.FetchTimeout)
		defer cancel()
	}
	return w.Fetch(ctx, page)
}

// PageURL returns base for page 1 and base with a page query parameter for
// later pages. Existing query parameters are kept.
func PageURL(base string, page int) string {
	if page <= 1 {
		return base
	}

	u, err := url.Parse(base)
	if err != nil {
		return base + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
