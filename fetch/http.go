package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// HTTPSession fetches pages with a plain HTTP client. It does not run
// scripts, so it only suits pages rendered on the server.
type HTTPSession struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewHTTPSession creates a session. A nil client gets one with
// opts.Timeout.
func NewHTTPSession(client *http.Client, opts Options) *HTTPSession {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPSession{
		client:  client,
		opts:    opts,
		limiter: newLimiter(opts.MinInterval),
	}
}

// Document fetches url and parses the body. Non-UTF-8 pages are decoded
// using the declared charset.
func (s *HTTPSession) Document(ctx context.Context, url string) (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrFetch, err)
	}
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	if s.opts.Locale != "" {
		req.Header.Set("Accept-Language", s.opts.Locale)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch URL: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP error: %d %s", ErrFetch, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode body: %w", ErrFetch, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %w", ErrFetch, err)
	}

	return doc, nil
}

// Close releases idle connections.
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
