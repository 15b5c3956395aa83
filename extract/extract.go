// Package extract reads article bodies and comment threads from news pages.
// Both walks are driven by pagewalk; this package only supplies the page
// projectors and assembles the results.
package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/pagewalk"
	"github.com/pevans/newsharvest/timestamp"
)

const (
	// NoComments is the text of the placeholder comment stored for a
	// thread without comments.
	NoComments = "コメントなし"

	// TitleUnavailable replaces a title that could not be read.
	TitleUnavailable = "タイトル取得失敗"

	DefaultTitleSuffix  = " - Yahoo!ニュース"
	DefaultCommentsBase = "https://news.yahoo.co.jp/articles"
)

// ErrNoArticleID is returned by CommentsURL for URLs without a path segment.
var ErrNoArticleID = errors.New("no article id in URL")

// DocumentFetcher loads a parsed page. fetch.Session satisfies it.
type DocumentFetcher interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// Options configures an Extractor.
type Options struct {
	Selectors    Selectors
	TitleSuffix  string
	CommentsBase string
	MaxPages     int
	FetchTimeout time.Duration
	// Now is the reference instant for relative comment times. It is fixed
	// for the whole run.
	Now time.Time
}

// DefaultOptions returns options for the default site with now as the
// reference instant.
func DefaultOptions(now time.Time) Options {
	return Options{
		Selectors:    DefaultSelectors(),
		TitleSuffix:  DefaultTitleSuffix,
		CommentsBase: DefaultCommentsBase,
		MaxPages:     pagewalk.DefaultMaxPages,
		Now:          now,
	}
}

// Extractor reads articles and comments through a DocumentFetcher.
type Extractor struct {
	fetcher DocumentFetcher
	opts    Options
	log     *logger.Logger
	policy  *bluemonday.Policy
}

// New creates an Extractor.
func New(fetcher DocumentFetcher, opts Options, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	if opts.CommentsBase == "" {
		opts.CommentsBase = DefaultCommentsBase
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Extractor{
		fetcher: fetcher,
		opts:    opts,
		log:     log,
		policy:  bluemonday.StrictPolicy(),
	}
}

// Article is an article body split into its pages.
type Article struct {
	Title string
	URL   string
	// Pages holds one text per page, paragraphs separated by newlines.
	Pages []string
	Stop  pagewalk.Stop
	// Fallback is set when the first page had no body container and its
	// text came from readability.
	Fallback bool
}

// Comment is one posted comment. Time is the display form of Posted, empty
// for the placeholder comment.
type Comment struct {
	Text   string
	Time   string
	Author string
	Posted timestamp.Result
}

// Thread is the comment list of an article.
type Thread struct {
	URL      string
	Comments []Comment
	Pages    int
	// Unknown counts comments whose time could not be read.
	Unknown int
	Stop    pagewalk.Stop
}

// Count returns the number of real comments.
func (t *Thread) Count() int {
	if IsNoComments(t.Comments) {
		return 0
	}
	return len(t.Comments)
}

// IsNoComments reports whether comments is the placeholder list.
func IsNoComments(comments []Comment) bool {
	return len(comments) > 0 && comments[0].Text == NoComments
}

// page is what the walkers fetch: the page number travels with the document
// so the projector can treat the first page differently.
type page struct {
	num int
	doc *goquery.Document
}

// Article walks the pages of the article at rawURL. An error is returned
// only when the first page could not be fetched; later failures end the walk
// and keep the pages read so far.
func (e *Extractor) Article(ctx context.Context, rawURL string) (*Article, error) {
	log := e.log.With("url", rawURL)
	art := &Article{URL: rawURL}
	var first *goquery.Document

	w := &pagewalk.Walker[page, string]{
		Fetch: func(ctx context.Context, n int) (page, error) {
			doc, err := e.fetcher.Document(ctx, pagewalk.PageURL(rawURL, n))
			if err != nil {
				return page{}, err
			}
			if n == 1 {
				first = doc
			}
			return page{num: n, doc: doc}, nil
		},
		Project: func(p page) ([]string, error) {
			text, fallback := e.pageText(p, rawURL)
			if fallback {
				art.Fallback = true
			}
			if text == "" {
				return nil, nil
			}
			return []string{text}, nil
		},
		Signature:    pagewalk.JoinSignature(func(s string) string { return s }),
		MaxPages:     e.opts.MaxPages,
		FetchTimeout: e.opts.FetchTimeout,
		Logger:       log,
	}

	res := w.Walk(ctx)
	if first == nil {
		err := res.Err
		if err == nil {
			err = errors.New("no page fetched")
		}
		return nil, fmt.Errorf("failed to read article %s: %w", rawURL, err)
	}
	if res.Err != nil {
		log.Warn("article walk ended early", "pages", res.PageCount(), "stop", res.Stop.String(), "error", res.Err)
	}

	art.Pages = res.Items
	art.Stop = res.Stop
	art.Title = e.title(first)
	return art, nil
}

// pageText returns the body text of one article page.
func (e *Extractor) pageText(p page, rawURL string) (string, bool) {
	sel := e.opts.Selectors.Article
	container := p.doc.Find(sel.Container).First()
	if container.Length() == 0 {
		if p.num != 1 {
			return "", false
		}
		return e.readabilityText(p.doc, rawURL), true
	}

	var paragraphs []string
	container.Find(sel.Paragraph).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n"), false
}

func (e *Extractor) readabilityText(doc *goquery.Document, rawURL string) string {
	src, err := doc.Html()
	if err != nil {
		return ""
	}
	pageURL, _ := url.Parse(rawURL)

	article, err := readability.FromReader(strings.NewReader(src), pageURL)
	if err != nil {
		e.log.Debug("readability failed", "url", rawURL, "error", err)
		return ""
	}

	var buf strings.Builder
	if err := article.RenderText(&buf); err != nil {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// title reads the page title, strips the site suffix and removes markup.
func (e *Extractor) title(doc *goquery.Document) string {
	raw := strings.TrimSpace(doc.Find(e.opts.Selectors.Article.Title).First().Text())
	if raw == "" {
		raw, _ = doc.Find(`meta[property="og:title"]`).First().Attr("content")
	}
	if e.opts.TitleSuffix != "" {
		raw = strings.ReplaceAll(raw, e.opts.TitleSuffix, "")
	}

	title := strings.TrimSpace(html.UnescapeString(e.policy.Sanitize(raw)))
	if title == "" {
		return TitleUnavailable
	}
	return title
}

// CommentsURL derives the comment thread URL from the last path segment of
// an article URL.
func (e *Extractor) CommentsURL(articleURL string) (string, error) {
	u, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("invalid article URL %q: %w", articleURL, err)
	}

	path := strings.TrimRight(u.Path, "/")
	id := path[strings.LastIndex(path, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNoArticleID, articleURL)
	}

	return strings.TrimRight(e.opts.CommentsBase, "/") + "/" + url.PathEscape(id) + "/comments", nil
}

// Comments walks the comment thread of the article at articleURL. A thread
// without comments holds the single NoComments placeholder.
func (e *Extractor) Comments(ctx context.Context, articleURL string) (*Thread, error) {
	threadURL, err := e.CommentsURL(articleURL)
	if err != nil {
		return nil, err
	}
	log := e.log.With("url", threadURL)
	fetched := false

	w := &pagewalk.Walker[*goquery.Document, Comment]{
		Fetch: func(ctx context.Context, n int) (*goquery.Document, error) {
			doc, err := e.fetcher.Document(ctx, pagewalk.PageURL(threadURL, n))
			if err == nil {
				fetched = true
			}
			return doc, err
		},
		Project:      e.projectComments,
		Signature:    pagewalk.JoinSignature(func(c Comment) string { return c.Text }),
		MaxPages:     e.opts.MaxPages,
		FetchTimeout: e.opts.FetchTimeout,
		Logger:       log,
	}

	res := w.Walk(ctx)
	if !fetched {
		err := res.Err
		if err == nil {
			err = errors.New("no page fetched")
		}
		return nil, fmt.Errorf("failed to read comments %s: %w", threadURL, err)
	}
	if res.Err != nil {
		log.Warn("comment walk ended early", "pages", res.PageCount(), "stop", res.Stop.String(), "error", res.Err)
	}

	thread := &Thread{
		URL:      threadURL,
		Comments: res.Items,
		Pages:    res.PageCount(),
		Stop:     res.Stop,
	}
	for _, c := range thread.Comments {
		if !c.Posted.Known() {
			thread.Unknown++
		}
	}
	if len(thread.Comments) == 0 {
		thread.Comments = []Comment{{Text: NoComments}}
	}
	return thread, nil
}

func (e *Extractor) projectComments(doc *goquery.Document) ([]Comment, error) {
	sel := e.opts.Selectors.Comment
	var comments []Comment

	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		raw := strings.TrimSpace(item.Find(sel.Time).First().Text())
		posted := timestamp.Normalize(raw, e.opts.Now)
		comments = append(comments, Comment{
			Text:   strings.TrimSpace(item.Find(sel.Text).First().Text()),
			Author: strings.TrimSpace(item.Find(sel.Author).First().Text()),
			Time:   timestamp.Display(posted.Time),
			Posted: posted,
		})
	})

	return comments, nil
}
