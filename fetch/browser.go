package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// BrowserSession drives one headless Chrome tab. Pages are rendered before
// their HTML is read, so client-side comment lists are populated.
type BrowserSession struct {
	opts    Options
	limiter *rate.Limiter

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewBrowserSession starts Chrome and opens a tab. The browser lives until
// Close is called.
func NewBrowserSession(ctx context.Context, opts Options) (*BrowserSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", opts.Locale))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	// The browser outlives any single request context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: failed to start browser: %w", ErrFetch, err)
	}

	return &BrowserSession{
		opts:          opts,
		limiter:       newLimiter(opts.MinInterval),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Document navigates the tab to url and returns the rendered HTML.
func (s *BrowserSession) Document(ctx context.Context, url string) (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}

	// chromedp needs a context derived from the tab, so the caller's
	// cancellation is forwarded instead.
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.browserCtx, s.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.browserCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}
	if s.opts.Locale != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
			"Accept-Language": s.opts.Locale,
		})))
	}
	var html string
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if s.opts.Settle > 0 {
		actions = append(actions, chromedp.Sleep(s.opts.Settle))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %w", ErrFetch, err)
	}
	return doc, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *BrowserSession) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}
