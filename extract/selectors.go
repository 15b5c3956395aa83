package extract

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Selectors defines where article text and comments live in a page. The
// defaults match the markup of the news site the tool was written for; class
// names there change without notice, so every selector can be overridden in
// the config file.
type Selectors struct {
	Article ArticleSelectors `yaml:"article"`
	Comment CommentSelectors `yaml:"comment"`
}

// ArticleSelectors locates article body text.
type ArticleSelectors struct {
	// Container holds the body. Paragraph is matched inside it.
	Container string `yaml:"container"`
	Paragraph string `yaml:"paragraph"`
	// Title is read before the og:title meta tag.
	Title string `yaml:"title"`
}

// CommentSelectors locates comments. Text, Author and Time are matched
// inside each Item.
type CommentSelectors struct {
	Item   string `yaml:"item"`
	Text   string `yaml:"text"`
	Author string `yaml:"author"`
	Time   string `yaml:"time"`
}

// DefaultSelectors returns the built-in selectors.
func DefaultSelectors() Selectors {
	return Selectors{
		Article: ArticleSelectors{
			Container: "article",
			Paragraph: "p",
			Title:     "title",
		},
		Comment: CommentSelectors{
			Item:   "article.sc-169yn8p-3",
			Text:   "p.sc-169yn8p-10",
			Author: "a.sc-169yn8p-7",
			Time:   "a.sc-169yn8p-9",
		},
	}
}

// ErrInvalidSelector is returned by Validate.
var ErrInvalidSelector = errors.New("invalid selector")

// Validate checks that every selector is set and compiles.
func (s Selectors) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"article.container", s.Article.Container},
		{"article.paragraph", s.Article.Paragraph},
		{"article.title", s.Article.Title},
		{"comment.item", s.Comment.Item},
		{"comment.text", s.Comment.Text},
		{"comment.author", s.Comment.Author},
		{"comment.time", s.Comment.Time},
	}

	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidSelector, f.name)
		}
		if _, err := cascadia.Compile(f.value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidSelector, f.name, err)
		}
	}
	return nil
}
