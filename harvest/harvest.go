// Package harvest runs one harvest: read the source table, select the rows
// inside the acceptance window, extract each article and its comments, and
// write everything into the output workbook.
//
// Records are processed one at a time in source order through a single
// fetch session. A failure, or a panic, inside one record is written to
// that record's sheet and never stops the run.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pevans/newsharvest/drive"
	"github.com/pevans/newsharvest/extract"
	"github.com/pevans/newsharvest/fetch"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/rows"
	"github.com/pevans/newsharvest/sink"
	"github.com/pevans/newsharvest/tabular"
	"github.com/pevans/newsharvest/window"
)

// Early exits. Neither produces a workbook.
var (
	ErrNoSource  = errors.New("no fetchable source")
	ErrNoRecords = errors.New("no eligible records")
)

// Ledger records runs. *ledger.Store satisfies it.
type Ledger interface {
	CreateRun(source string, startedAt, windowStart, windowEnd time.Time) (*ledger.Run, error)
	Record(runID uuid.UUID, e ledger.Entry) error
	FinishRun(runID uuid.UUID, u ledger.RunUpdate) error
}

// Observer is told about run progress. Any method may be left as a no-op.
type Observer interface {
	WindowSelected(w window.Window, inScope, total int)
	RecordStarted(n, total int, rec rows.Record)
	RecordFinished(n, total int, res *Result)
}

// Options configures a Runner.
type Options struct {
	Layout      rows.Layout
	CutoverHour int
	// Extract configures the extractor; its Now is replaced by the run time.
	Extract extract.Options
	// OutputPath names the workbook for a run at now.
	OutputPath func(now time.Time) string
	FolderID   string
	KeepLocal  bool
	// DryRun selects records without opening a session or writing output.
	DryRun bool
}

// Runner holds the collaborators of a run. Uploader, Ledger, Metrics and
// Observer are optional.
type Runner struct {
	Source      tabular.Reader
	SourceName  string
	OpenSession func(ctx context.Context) (fetch.Session, error)
	NewWorkbook func() (sink.Workbook, error)
	Uploader    drive.Uploader
	Ledger      Ledger
	Metrics     *metrics.Metrics
	Observer    Observer
	Logger      *logger.Logger
	Options     Options
}

// Summary describes a finished run.
type Summary struct {
	RunID   uuid.UUID
	Window  window.Window
	Total   int
	Skipped []*rows.RowError
	// Selected are the in-scope records in source order.
	Selected []rows.Record
	Results  []*Result
	Output   string
	RemoteID string
	// UploadErr is set when the workbook was saved but not uploaded.
	UploadErr error
	Cancelled bool
}

// Failures counts results with any failure.
func (s *Summary) Failures() int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome() != metrics.OutcomeOK {
			n++
		}
	}
	return n
}

// Run performs a harvest with now as the fixed reference instant.
func (r *Runner) Run(ctx context.Context, now time.Time) (*Summary, error) {
	log := r.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := r.Metrics
	if m == nil {
		m = metrics.New()
	}

	var session fetch.Session
	if !r.Options.DryRun {
		s, err := r.OpenSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
		session = s
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn("failed to close session", "error", err)
			}
		}()
	}

	raw, err := r.Source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSource, err)
	}

	idx := rows.Build(raw, r.Options.Layout, now)
	for _, skipped := range idx.Skipped {
		log.Warn("skipping row with unrecognized date", "row", skipped.RowPosition, "value", skipped.Value)
	}
	m.SkippedRowsTotal.Add(float64(len(idx.Skipped)))
	if len(idx.Records) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSource, rows.ErrNoRows)
	}

	w := window.ForCutover(now, r.Options.CutoverHour)
	selected := idx.InScope(w)
	summary := &Summary{
		Window:   w,
		Total:    len(idx.Records),
		Skipped:  idx.Skipped,
		Selected: selected,
	}
	r.observer().WindowSelected(w, len(selected), len(idx.Records))
	log.Info("window selected", "window", w.String(), "in_scope", len(selected), "total", len(idx.Records))

	if len(selected) == 0 {
		return summary, ErrNoRecords
	}
	if r.Options.DryRun {
		return summary, nil
	}

	var runID uuid.UUID
	if r.Ledger != nil {
		run, err := r.Ledger.CreateRun(r.SourceName, now, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
		runID = run.RunID
		summary.RunID = runID
	}

	err = r.harvest(ctx, now, session, raw, summary, log, m)

	status := ledger.StatusCompleted
	switch {
	case summary.Cancelled:
		status = ledger.StatusCancelled
	case err != nil:
		status = ledger.StatusFailed
	}
	r.finish(runID, status, summary, log)
	m.LastRunTimestamp.SetToCurrentTime()

	if err != nil {
		return summary, err
	}
	if summary.Cancelled {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (r *Runner) harvest(
	ctx context.Context,
	now time.Time,
	session fetch.Session,
	raw [][]string,
	summary *Summary,
	log *logger.Logger,
	m *metrics.Metrics,
) error {
	wb, err := r.NewWorkbook()
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	defer wb.Close()

	sk, err := sink.New(wb, raw)
	if err != nil {
		return err
	}

	opts := r.Options.Extract
	opts.Now = now
	ext := extract.New(session, opts, log)

	total := len(summary.Selected)
	for i, rec := range summary.Selected {
		if ctx.Err() != nil {
			summary.Cancelled = true
			log.Warn("run cancelled", "processed", i, "total", total)
			break
		}

		r.observer().RecordStarted(i+1, total, rec)
		res := r.processRecord(ctx, ext, sk, i+1, rec, log, m)
		summary.Results = append(summary.Results, res)
		r.record(summary.RunID, res, log)
		r.observer().RecordFinished(i+1, total, res)
	}

	path := r.Options.OutputPath(now)
	if err := sk.Save(path); err != nil {
		return err
	}
	summary.Output = path
	log.Info("workbook saved", "path", path, "records", len(summary.Results))

	if r.Uploader == nil || summary.Cancelled {
		return nil
	}

	id, err := r.Uploader.Upload(ctx, path, r.Options.FolderID)
	if err != nil {
		summary.UploadErr = err
		log.Error("upload failed", "path", path, "error", err)
		return nil
	}
	summary.RemoteID = id
	log.Info("workbook uploaded", "file_id", id)

	if !r.Options.KeepLocal {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove local workbook", "path", path, "error", err)
		}
	}
	return nil
}

func (r *Runner) record(runID uuid.UUID, res *Result, log *logger.Logger) {
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.Record(runID, res.Entry()); err != nil {
		log.Warn("failed to record result", "row", res.RowPosition, "error", err)
	}
}

func (r *Runner) finish(runID uuid.UUID, status string, summary *Summary, log *logger.Logger) {
	if r.Ledger == nil {
		return
	}
	err := r.Ledger.FinishRun(runID, ledger.RunUpdate{
		FinishedAt: time.Now(),
		Status:     status,
		Output:     summary.Output,
		RemoteID:   summary.RemoteID,
		Records:    len(summary.Results),
		Failures:   summary.Failures(),
	})
	if err != nil {
		log.Warn("failed to finish run", "run_id", runID, "error", err)
	}
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return nopObserver{}
	}
	return r.Observer
}

type nopObserver struct{}

func (nopObserver) WindowSelected(window.Window, int, int) {}
func (nopObserver) RecordStarted(int, int, rows.Record)    {}
func (nopObserver) RecordFinished(int, int, *Result)       {}
