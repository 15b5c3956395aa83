package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/newsharvest/extract"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/rows"
	"github.com/pevans/newsharvest/sink"
)

// Result is the outcome for one source record. It is written back to the
// input sheet at RowPosition exactly once.
type Result struct {
	RowPosition int
	URL         string
	Sheet       string
	Title       string
	BodyPages   []string
	Comments    []extract.Comment
	// CommentCount is meaningful only when CountFailed is false.
	CommentCount int
	CountFailed  bool

	SheetErr    error
	ArticleErr  error
	CommentsErr error
	// Panic holds the recovered value when processing panicked.
	Panic    string
	Duration time.Duration
}

// Outcome classifies the result for metrics.
func (r *Result) Outcome() string {
	switch {
	case r.Panic != "":
		return metrics.OutcomePanicked
	case r.SheetErr != nil, r.ArticleErr != nil && r.CommentsErr != nil:
		return metrics.OutcomeFailed
	case r.ArticleErr != nil:
		return metrics.OutcomeArticleFailed
	case r.CommentsErr != nil:
		return metrics.OutcomeCommentsFailed
	}
	return metrics.OutcomeOK
}

// Entry converts the result into a ledger entry.
func (r *Result) Entry() ledger.Entry {
	e := ledger.Entry{
		RowPosition: r.RowPosition,
		URL:         r.URL,
		Sheet:       r.Sheet,
		Title:       r.Title,
		BodyPages:   len(r.BodyPages),
		RecordedAt:  time.Now(),
	}
	if !r.CountFailed {
		count := r.CommentCount
		e.CommentCount = &count
	}
	if r.ArticleErr != nil {
		e.ArticleError = r.ArticleErr.Error()
	}
	switch {
	case r.Panic != "":
		e.CommentsError = "panic: " + r.Panic
	case r.SheetErr != nil:
		e.CommentsError = r.SheetErr.Error()
	case r.CommentsErr != nil:
		e.CommentsError = r.CommentsErr.Error()
	}
	return e
}

// processRecord extracts one record into its own sheet and writes its count
// back. It never returns an error and never panics.
func (r *Runner) processRecord(
	ctx context.Context,
	ext *extract.Extractor,
	sk *sink.Sink,
	n int,
	rec rows.Record,
	log *logger.Logger,
	m *metrics.Metrics,
) (res *Result) {
	res = &Result{RowPosition: rec.RowPosition, URL: rec.URL}
	log = log.With("row", rec.RowPosition, "url", rec.URL)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Panic = fmt.Sprint(p)
			res.CountFailed = true
			log.Error("record panicked", "panic", res.Panic)
			if err := sk.WriteCountFailure(rec.RowPosition); err != nil {
				log.Warn("failed to write count", "error", err)
			}
		}
		res.Duration = time.Since(start)
		m.RecordRecord(res.Outcome(), res.Duration.Seconds())
	}()

	sheet, err := sk.CreateSheet(rec.Column(0), n)
	if err != nil {
		res.SheetErr = err
		res.CountFailed = true
		log.Error("failed to create sheet", "error", err)
		if err := sk.WriteCountFailure(rec.RowPosition); err != nil {
			log.Warn("failed to write count", "error", err)
		}
		return res
	}
	res.Sheet = sheet

	art, err := ext.Article(ctx, rec.URL)
	if err != nil {
		res.ArticleErr = err
		log.Warn("article failed", "error", err)
		if err := sk.WriteArticleError(sheet, err); err != nil {
			log.Warn("failed to write article error", "sheet", sheet, "error", err)
		}
	} else {
		res.Title = art.Title
		res.BodyPages = art.Pages
		m.RecordWalk(metrics.KindArticle, len(art.Pages), art.Stop.String())
		if err := sk.WriteArticle(sheet, art); err != nil {
			log.Warn("failed to write article", "sheet", sheet, "error", err)
		}
	}

	thread, err := ext.Comments(ctx, rec.URL)
	if err != nil {
		res.CommentsErr = err
		res.CountFailed = true
		log.Warn("comments failed", "error", err)
		if err := sk.WriteCommentsError(sheet, err); err != nil {
			log.Warn("failed to write comments error", "sheet", sheet, "error", err)
		}
		if err := sk.WriteCountFailure(rec.RowPosition); err != nil {
			log.Warn("failed to write count", "error", err)
		}
		return res
	}

	res.Comments = thread.Comments
	res.CommentCount = thread.Count()
	m.RecordWalk(metrics.KindComments, thread.Pages, thread.Stop.String())
	m.RecordComments(res.CommentCount, thread.Unknown)
	if err := sk.WriteComments(sheet, thread.Comments); err != nil {
		log.Warn("failed to write comments", "sheet", sheet, "error", err)
	}
	if err := sk.WriteCount(rec.RowPosition, res.CommentCount); err != nil {
		log.Warn("failed to write count", "error", err)
	}

	log.Info("record done", "title", res.Title, "pages", len(res.BodyPages), "comments", res.CommentCount)
	return res
}
