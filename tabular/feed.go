package tabular

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedHeader is the header row produced by FeedReader. Its columns line up
// with rows.DefaultLayout: publication date in C, link in D.
var FeedHeader = []string{"媒体", "見出し", "投稿日", "URL", "著者"}

// FeedDateLayout formats item dates in feed rows.
const FeedDateLayout = "2006/01/02 15:04:05"

// FeedReader turns an RSS or Atom feed into a table, one row per item.
type FeedReader struct {
	URL       string
	HTTP      *http.Client
	UserAgent string
	// Location is the zone dates are written in. Nil means time.Local.
	Location *time.Location
}

func (r *FeedReader) Read(ctx context.Context) ([][]string, error) {
	fp := gofeed.NewParser()
	if r.HTTP != nil {
		fp.Client = r.HTTP
	}
	if r.UserAgent != "" {
		fp.UserAgent = r.UserAgent
	}

	feed, err := fp.ParseURLWithContext(r.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return FeedRows(feed, r.Location), nil
}

// FeedRows converts feed items to table rows behind FeedHeader. Items
// without a date get an empty date cell.
func FeedRows(feed *gofeed.Feed, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.Local
	}

	rows := make([][]string, 0, len(feed.Items)+1)
	rows = append(rows, append([]string(nil), FeedHeader...))
	for _, item := range feed.Items {
		rows = append(rows, feedRow(item, feed.Title, loc))
	}
	return rows
}

func feedRow(item *gofeed.Item, feedTitle string, loc *time.Location) []string {
	// gofeed parses RSS pubDate and Atom published/updated alike
	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.In(loc).Format(FeedDateLayout)
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.In(loc).Format(FeedDateLayout)
	}

	return []string{
		feedTitle,
		strings.TrimSpace(item.Title),
		published,
		item.Link,
		strings.Join(itemAuthors(item), ", "),
	}
}

func itemAuthors(item *gofeed.Item) []string {
	authors := make([]string, 0)
	if item.Author != nil && item.Author.Name != "" {
		authors = append(authors, item.Author.Name)
	}
	for _, author := range item.Authors {
		if author.Name != "" && !contains(authors, author.Name) {
			authors = append(authors, author.Name)
		}
	}
	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			if creator != "" && !contains(authors, creator) {
				authors = append(authors, creator)
			}
		}
	}
	return authors
}

// contains checks if a string slice contains a specific string
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, str) {
			return true
		}
	}
	return false
}
