package pagewalk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pages is a fake site: index 0 is page 1. Pages past the end repeat page 1,
// the way a site redirects out-of-range page numbers.
type pages struct {
	content [][]string
	errAt   int
	fetched []int
}

func (p *pages) fetch(_ context.Context, page int) ([]string, error) {
	p.fetched = append(p.fetched, page)
	if p.errAt != 0 && page == p.errAt {
		return nil, errors.New("navigation failed")
	}
	if page > len(p.content) {
		if len(p.content) == 0 {
			return nil, nil
		}
		return p.content[0], nil
	}
	return p.content[page-1], nil
}

func newWalker(p *pages) *Walker[[]string, string] {
	return &Walker[[]string, string]{
		Fetch:     p.fetch,
		Project:   func(items []string) ([]string, error) { return items, nil },
		Signature: JoinSignature(func(s string) string { return s }),
	}
}

// TestWalk_EmptyFirstPage verifies an empty first page ends the walk with
// nothing accumulated
func TestWalk_EmptyFirstPage(t *testing.T) {
	p := &pages{}

	res := newWalker(p).Walk(context.Background())

	assert.Equal(t, StopEmpty, res.Stop)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.PageCount())
	assert.NoError(t, res.Err)
	assert.Equal(t, []int{1}, p.fetched)
}

// TestWalk_RepeatedPage verifies the redirect-to-page-1 signal
func TestWalk_RepeatedPage(t *testing.T) {
	p := &pages{content: [][]string{{"a", "b"}, {"c"}, {"c"}}}

	res := newWalker(p).Walk(context.Background())

	assert.Equal(t, StopRepeated, res.Stop)
	assert.Equal(t, []string{"a", "b", "c"}, res.Items)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, res.Pages)
	assert.Equal(t, []int{1, 2, 3}, p.fetched)
}

// TestWalk_SinglePageSite verifies a site echoing page 1 for page 2 yields
// exactly one page
func TestWalk_SinglePageSite(t *testing.T) {
	p := &pages{content: [][]string{{"only"}}}

	res := newWalker(p).Walk(context.Background())

	assert.Equal(t, StopRepeated, res.Stop)
	assert.Equal(t, []string{"only"}, res.Items)
	assert.Equal(t, []int{1, 2}, p.fetched)
}

// TestWalk_FetchErrorKeepsAccumulated verifies fetch failures are not
// propagated and earlier pages survive
func TestWalk_FetchErrorKeepsAccumulated(t *testing.T) {
	p := &pages{content: [][]string{{"a"}, {"b"}, {"c"}}, errAt: 3}

	res := newWalker(p).Walk(context.Background())

	assert.Equal(t, StopFetchError, res.Stop)
	assert.Equal(t, []string{"a", "b"}, res.Items)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "navigation failed")
}

// TestWalk_FetchErrorOnFirstPage verifies a failing first page yields an
// empty result rather than a panic or error return
func TestWalk_FetchErrorOnFirstPage(t *testing.T) {
	p := &pages{content: [][]string{{"a"}}, errAt: 1}

	res := newWalker(p).Walk(context.Background())

	assert.Equal(t, StopFetchError, res.Stop)
	assert.Empty(t, res.Items)
}

// TestWalk_ProjectErrorStops verifies projection failures end the walk
func TestWalk_ProjectErrorStops(t *testing.T) {
	p := &pages{content: [][]string{{"a"}, {"bad"}}}
	w := newWalker(p)
	w.Project = func(items []string) ([]string, error) {
		if len(items) > 0 && items[0] == "bad" {
			return nil, errors.New("parse failed")
		}
		return items, nil
	}

	res := w.Walk(context.Background())

	assert.Equal(t, StopFetchError, res.Stop)
	assert.Equal(t, []string{"a"}, res.Items)
}

// TestWalk_MaxPages verifies the runaway guard
func TestWalk_MaxPages(t *testing.T) {
	w := &Walker[int, int]{
		Fetch:     func(_ context.Context, page int) (int, error) { return page, nil },
		Project:   func(page int) ([]int, error) { return []int{page}, nil },
		Signature: JoinSignature(func(i int) string { return string(rune('a' + i)) }),
		MaxPages:  4,
	}

	res := w.Walk(context.Background())

	assert.Equal(t, StopMaxPages, res.Stop)
	assert.Equal(t, []int{1, 2, 3, 4}, res.Items)
}

// TestWalk_CancelledBetweenPages verifies cancellation is checked before
// each fetch
func TestWalk_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &Walker[int, int]{
		Fetch: func(_ context.Context, page int) (int, error) {
			if page == 2 {
				cancel()
			}
			return page, nil
		},
		Project:   func(page int) ([]int, error) { return []int{page}, nil },
		Signature: JoinSignature(func(i int) string { return string(rune('a' + i)) }),
	}

	res := w.Walk(ctx)

	assert.Equal(t, StopCancelled, res.Stop)
	assert.Equal(t, []int{1, 2}, res.Items)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

// TestWalk_FetchTimeout verifies each fetch receives its own deadline
func TestWalk_FetchTimeout(t *testing.T) {
	w := &Walker[int, int]{
		Fetch: func(ctx context.Context, page int) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
		Project:      func(page int) ([]int, error) { return []int{page}, nil },
		Signature:    JoinSignature(func(i int) string { return "x" }),
		FetchTimeout: 10 * time.Millisecond,
	}

	res := w.Walk(context.Background())

	assert.Equal(t, StopFetchError, res.Stop)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

// TestPageURL verifies page URLs
func TestPageURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a/1", PageURL("https://example.com/a/1", 1))
	assert.Equal(t, "https://example.com/a/1", PageURL("https://example.com/a/1", 0))
	assert.Equal(t, "https://example.com/a/1?page=2", PageURL("https://example.com/a/1", 2))
	assert.Equal(t, "https://example.com/a/1?page=3&s=x", PageURL("https://example.com/a/1?s=x", 3))
}

// TestStopString verifies stop names used in logs and metrics
func TestStopString(t *testing.T) {
	assert.Equal(t, "empty", StopEmpty.String())
	assert.Equal(t, "repeated", StopRepeated.String())
	assert.Equal(t, "fetch_error", StopFetchError.String())
	assert.Equal(t, "cancelled", StopCancelled.String())
	assert.Equal(t, "max_pages", StopMaxPages.String())
	assert.Equal(t, "none", StopNone.String())
}
