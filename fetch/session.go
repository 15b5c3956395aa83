// Package fetch loads and parses pages for the extractor. A Session owns the
// navigation state, so one Session must not be driven by more than one
// record at a time.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// Errors returned by sessions. Every failure wraps ErrFetch so callers can
// tell transport failures from other errors.
var (
	ErrFetch      = errors.New("fetch failed")
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Session loads a URL and returns the parsed document.
type Session interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
	Close() error
}

// Options configures a session.
type Options struct {
	UserAgent string
	// Locale is sent as Accept-Language and passed to the browser as --lang.
	Locale    string
	Headless  bool
	NoSandbox bool
	// Timeout bounds a single navigation.
	Timeout time.Duration
	// MinInterval is the minimum gap between two navigations.
	MinInterval time.Duration
	// Settle is how long the browser waits after the body is ready so
	// client-side rendering can finish.
	Settle     time.Duration
	ChromePath string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Locale:      "ja-JP",
		Headless:    true,
		NoSandbox:   true,
		Timeout:     30 * time.Second,
		MinInterval: 2 * time.Second,
		Settle:      2 * time.Second,
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
