package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
)

// RobotsGuard wraps a Session and refuses URLs the host's robots.txt
// disallows for the configured agent. robots.txt files are fetched once per
// host. A host whose robots.txt cannot be fetched is allowed until a later
// fetch succeeds.
type RobotsGuard struct {
	next   Session
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewRobotsGuard creates a guard in front of next.
func NewRobotsGuard(next Session, client *http.Client, agent string) *RobotsGuard {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsGuard{
		next:   next,
		client: client,
		agent:  agent,
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Document checks robots.txt and delegates to the wrapped session.
func (g *RobotsGuard) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %w", ErrFetch, rawURL, err)
	}

	if !g.Allowed(ctx, u) {
		return nil, fmt.Errorf("%w: %w: %s", ErrFetch, ErrDisallowed, rawURL)
	}
	return g.next.Document(ctx, rawURL)
}

// Allowed reports whether the agent may fetch u.
func (g *RobotsGuard) Allowed(ctx context.Context, u *url.URL) bool {
	data := g.robots(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), g.agent)
}

// Close closes the wrapped session.
func (g *RobotsGuard) Close() error {
	return g.next.Close()
}

func (g *RobotsGuard) robots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.hosts[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	data, complete := g.load(ctx, key)
	if !complete {
		return nil
	}

	g.mu.Lock()
	g.hosts[key] = data
	g.mu.Unlock()
	return data
}

// load fetches origin's robots.txt. complete is false when no full response
// was read; such results are not cached so a later request can retry.
func (g *RobotsGuard) load(ctx context.Context, origin string) (data *robotstxt.RobotsData, complete bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	if g.agent != "" {
		req.Header.Set("User-Agent", g.agent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, false
	}

	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, true
	}
	return data, true
}
