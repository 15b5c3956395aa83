package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/pevans/newsharvest/drive"
	"github.com/pevans/newsharvest/extract"
	"github.com/pevans/newsharvest/gauth"
	"github.com/pevans/newsharvest/harvest"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/rows"
	"github.com/pevans/newsharvest/sink"
	"github.com/pevans/newsharvest/window"
)

// titleWidth is the display width titles and URLs are cut to in tables.
const titleWidth = 40

func (a *app) newRunCmd() *cobra.Command {
	var (
		nowFlag string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest the records inside the current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now(nowFlag)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), now, dryRun)
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "reference time, e.g. \"2024/05/10 12:00\" (default: current time)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the records in the window without fetching")
	return cmd
}

func (a *app) run(ctx context.Context, now time.Time, dryRun bool) error {
	cfg := a.cfg

	var auth *gauth.TokenSource
	if a.needsAuth(dryRun) {
		ts, err := a.authorize(ctx, dryRun)
		if err != nil {
			return err
		}
		auth = ts
	}

	reader, err := a.reader(ctx, auth)
	if err != nil {
		return err
	}

	extractOpts := extract.DefaultOptions(now)
	extractOpts.Selectors = cfg.Extract.Selectors
	extractOpts.TitleSuffix = cfg.Extract.TitleSuffix
	extractOpts.CommentsBase = cfg.Extract.CommentsBase
	extractOpts.MaxPages = cfg.Fetch.MaxPages
	extractOpts.FetchTimeout = cfg.Fetch.Timeout

	m := metrics.New()
	runner := &harvest.Runner{
		Source:      reader,
		SourceName:  a.sourceName(),
		OpenSession: a.openSession,
		NewWorkbook: func() (sink.Workbook, error) {
			return sink.NewExcelWorkbook(sink.InputSheet)
		},
		Metrics:  m,
		Observer: &progress{printer: a.printer},
		Logger:   a.log,
		Options: harvest.Options{
			Layout:      cfg.Source.Columns,
			CutoverHour: cfg.Window.CutoverHour,
			Extract:     extractOpts,
			OutputPath:  cfg.OutputPath,
			FolderID:    cfg.Upload.FolderID,
			KeepLocal:   cfg.Output.KeepLocal,
			DryRun:      dryRun,
		},
	}

	if cfg.Upload.Enabled && !dryRun {
		uploader, err := drive.NewClient(ctx, option.WithTokenSource(auth))
		if err != nil {
			return err
		}
		runner.Uploader = uploader
	}

	if cfg.Ledger.DSN != "" && !dryRun {
		store, err := ledger.NewStore(cfg.Ledger.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Ledger = store
	}

	summary, err := runner.Run(ctx, now)

	if cfg.Metrics.Textfile != "" && !dryRun {
		if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			a.log.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", werr)
		}
	}

	switch {
	case errors.Is(err, harvest.ErrNoRecords):
		a.printer.Warning("No records were published inside the window.")
		return nil
	case summary == nil:
		return err
	}

	if dryRun {
		a.printSelected(summary.Selected)
		return err
	}

	a.printSummary(summary)
	return err
}

func (a *app) printSelected(records []rows.Record) {
	a.printer.Header("Records in window")
	table := make([][]string, 0, len(records))
	for _, rec := range records {
		table = append(table, []string{
			strconv.Itoa(rec.RowPosition),
			rec.RawPublication,
			truncateWidth(rec.Column(1), titleWidth),
			rec.URL,
		})
	}
	if err := a.printer.Table([]string{"Row", "Published", "Headline", "URL"}, table); err != nil {
		a.log.Warn("failed to render table", "error", err)
	}
}

func (a *app) printSummary(s *harvest.Summary) {
	a.printer.Header("Results")
	table := make([][]string, 0, len(s.Results))
	for _, res := range s.Results {
		count := strconv.Itoa(res.CommentCount)
		if res.CountFailed {
			count = sink.CountFailure
		}
		title := res.Title
		if title == "" {
			title = res.URL
		}
		table = append(table, []string{
			strconv.Itoa(res.RowPosition),
			res.Sheet,
			truncateWidth(title, titleWidth),
			strconv.Itoa(len(res.BodyPages)),
			count,
			res.Outcome(),
		})
	}
	if err := a.printer.Table([]string{"Row", "Sheet", "Title", "Pages", "Comments", "Outcome"}, table); err != nil {
		a.log.Warn("failed to render table", "error", err)
	}

	a.printer.Print("")
	if s.Cancelled {
		a.printer.Warning("Run cancelled after %d of %d records.", len(s.Results), len(s.Selected))
	}
	if n := s.Failures(); n > 0 {
		a.printer.Warning("%d of %d records had failures.", n, len(s.Results))
	}
	if s.Output != "" {
		a.printer.Success("Workbook saved: %s", s.Output)
	}
	switch {
	case s.UploadErr != nil:
		a.printer.Error("Upload failed: %v", s.UploadErr)
	case s.RemoteID != "":
		a.printer.Success("Uploaded to Drive: file id %s", s.RemoteID)
	}
}

// progress prints the window and a counter per record.
type progress struct {
	printer *Printer
}

func (p *progress) WindowSelected(w window.Window, inScope, total int) {
	p.printer.Info("Window: %s", w.String())
	p.printer.Info("%d of %d records are in the window.", inScope, total)
}

func (p *progress) RecordStarted(n, total int, rec rows.Record) {
	p.printer.Print("(%d/%d) %s", n, total, rec.URL)
}

func (p *progress) RecordFinished(_, _ int, res *harvest.Result) {
	switch res.Outcome() {
	case metrics.OutcomeOK:
		p.printer.Success("%s: %d comments", truncateWidth(res.Title, titleWidth), res.CommentCount)
	default:
		p.printer.Warning("row %d: %s", res.RowPosition, res.Outcome())
	}
}
