package main

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"

	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/fetch"
	"github.com/pevans/newsharvest/gauth"
	"github.com/pevans/newsharvest/tabular"
)

// needsAuth reports whether the run talks to Google APIs.
func (a *app) needsAuth(dryRun bool) bool {
	return a.cfg.Source.Kind == config.SourceGSheet || (a.cfg.Upload.Enabled && !dryRun)
}

// authorize loads the service-account key and obtains a first token, so a
// credential problem stops the run before any record is processed.
func (a *app) authorize(ctx context.Context, dryRun bool) (*gauth.TokenSource, error) {
	creds, err := gauth.LoadCredentials(a.cfg.Upload.Credentials)
	if err != nil {
		return nil, err
	}

	var scopes []string
	if a.cfg.Source.Kind == config.SourceGSheet {
		scopes = append(scopes, gauth.ScopeSheetsReadOnly)
	}
	if a.cfg.Upload.Enabled && !dryRun {
		scopes = append(scopes, gauth.ScopeDriveFile)
	}

	ts, err := gauth.NewTokenSource(ctx, creds, &http.Client{Timeout: a.cfg.Fetch.Timeout}, scopes...)
	if err != nil {
		return nil, err
	}
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	a.log.Info("authorized", "client_email", creds.ClientEmail)
	return ts, nil
}

// reader builds the tabular source. auth is only used by gsheet sources.
func (a *app) reader(ctx context.Context, auth *gauth.TokenSource) (tabular.Reader, error) {
	src := a.cfg.Source
	switch src.Kind {
	case config.SourceCSV:
		return &tabular.CSVReader{Path: src.Path, Encoding: src.Encoding}, nil
	case config.SourceXLSX:
		return &tabular.XLSXReader{
			Path:        src.Path,
			Sheet:       src.Sheet,
			DateColumns: []int{src.Columns.DateColumn},
		}, nil
	case config.SourceGSheet:
		id, err := tabular.SpreadsheetIDFromURL(src.URL)
		if err != nil {
			return nil, err
		}
		r, err := tabular.NewSheetsReader(ctx, id, src.Sheet, option.WithTokenSource(auth))
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.SourceFeed:
		return &tabular.FeedReader{
			URL:       src.URL,
			HTTP:      &http.Client{Timeout: a.cfg.Fetch.Timeout},
			UserAgent: a.fetchOptions().UserAgent,
			Location:  a.loc,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalid, src.Kind)
}

// sourceName labels the run in the ledger.
func (a *app) sourceName() string {
	src := a.cfg.Source
	if src.Path != "" && (src.Kind == config.SourceCSV || src.Kind == config.SourceXLSX) {
		return src.Kind + ":" + src.Path
	}
	return src.Kind + ":" + src.URL
}

func (a *app) fetchOptions() fetch.Options {
	f := a.cfg.Fetch
	opts := fetch.DefaultOptions()
	if f.UserAgent != "" {
		opts.UserAgent = f.UserAgent
	}
	opts.Locale = f.Locale
	opts.Headless = f.Headless
	opts.NoSandbox = f.NoSandbox
	opts.Timeout = f.Timeout
	opts.MinInterval = f.MinInterval
	opts.Settle = f.Settle
	opts.ChromePath = f.ChromePath
	return opts
}

// openSession starts the configured fetch session.
func (a *app) openSession(ctx context.Context) (fetch.Session, error) {
	opts := a.fetchOptions()

	var session fetch.Session
	switch a.cfg.Fetch.Mode {
	case config.FetchHTTP:
		session = fetch.NewHTTPSession(&http.Client{Timeout: opts.Timeout}, opts)
	default:
		browser, err := fetch.NewBrowserSession(ctx, opts)
		if err != nil {
			return nil, err
		}
		session = browser
	}

	if a.cfg.Fetch.RespectRobots {
		session = fetch.NewRobotsGuard(session, &http.Client{Timeout: opts.Timeout}, opts.UserAgent)
	}
	a.log.Debug("session opened", "mode", a.cfg.Fetch.Mode, "robots", a.cfg.Fetch.RespectRobots)
	return session, nil
}
