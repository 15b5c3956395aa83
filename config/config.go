// Package config loads the harvester configuration: defaults, then the YAML
// file, then NEWSHARVEST_* environment variables. Command-line flags are
// applied last by the command.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo database

	"github.com/pevans/newsharvest/extract"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/pagewalk"
	"github.com/pevans/newsharvest/rows"
	"github.com/pevans/newsharvest/window"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds.
const (
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourceGSheet = "gsheet"
	SourceFeed   = "feed"
)

// Fetch modes.
const (
	FetchBrowser = "browser"
	FetchHTTP    = "http"
)

// Config is the whole configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Extract ExtractConfig `yaml:"extract"`
	Window  WindowConfig  `yaml:"window"`
	Output  OutputConfig  `yaml:"output"`
	Upload  UploadConfig  `yaml:"upload"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig says where the table of URLs comes from.
type SourceConfig struct {
	Kind string `yaml:"kind"`
	// Path is used by csv and xlsx sources.
	Path string `yaml:"path"`
	// URL is the spreadsheet URL or id for gsheet and the feed URL for feed.
	URL      string      `yaml:"url"`
	Sheet    string      `yaml:"sheet"`
	Encoding string      `yaml:"encoding"`
	Columns  rows.Layout `yaml:"columns"`
}

// FetchConfig configures page loading.
type FetchConfig struct {
	Mode          string        `yaml:"mode"`
	Locale        string        `yaml:"locale"`
	Headless      bool          `yaml:"headless"`
	NoSandbox     bool          `yaml:"no_sandbox"`
	Timeout       time.Duration `yaml:"timeout"`
	MinInterval   time.Duration `yaml:"min_interval"`
	Settle        time.Duration `yaml:"settle"`
	UserAgent     string        `yaml:"user_agent"`
	ChromePath    string        `yaml:"chrome_path"`
	RespectRobots bool          `yaml:"respect_robots"`
	MaxPages      int           `yaml:"max_pages"`
}

// ExtractConfig configures page projection.
type ExtractConfig struct {
	Selectors    extract.Selectors `yaml:"selectors"`
	TitleSuffix  string            `yaml:"title_suffix"`
	CommentsBase string            `yaml:"comments_base"`
}

// WindowConfig configures the acceptance window.
type WindowConfig struct {
	CutoverHour int    `yaml:"cutover_hour"`
	Timezone    string `yaml:"timezone"`
}

// OutputConfig configures the workbook file.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// FilePattern is a time layout applied to the run time.
	FilePattern string `yaml:"file_pattern"`
	// KeepLocal keeps the workbook after a successful upload.
	KeepLocal bool `yaml:"keep_local"`
}

// UploadConfig configures the Drive upload.
type UploadConfig struct {
	Enabled     bool   `yaml:"enabled"`
	FolderID    string `yaml:"folder_id"`
	Credentials string `yaml:"credentials"`
}

// LedgerConfig configures the run ledger. An empty DSN disables it.
type LedgerConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig configures the metrics textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:    SourceCSV,
			Path:    "news.csv",
			Columns: rows.DefaultLayout(),
		},
		Fetch: FetchConfig{
			Mode:        FetchBrowser,
			Locale:      "ja-JP",
			Headless:    true,
			NoSandbox:   true,
			Timeout:     30 * time.Second,
			MinInterval: 2 * time.Second,
			Settle:      2 * time.Second,
			MaxPages:    pagewalk.DefaultMaxPages,
		},
		Extract: ExtractConfig{
			Selectors:    extract.DefaultSelectors(),
			TitleSuffix:  extract.DefaultTitleSuffix,
			CommentsBase: extract.DefaultCommentsBase,
		},
		Window: WindowConfig{
			CutoverHour: window.DefaultCutoverHour,
			Timezone:    "Asia/Tokyo",
		},
		Output: OutputConfig{
			Dir:         ".",
			FilePattern: "060102.xlsx",
		},
		Upload: UploadConfig{
			Credentials: "service_account.json",
		},
		Ledger: LedgerConfig{
			DSN: "newsharvest.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: window.timezone: %w", ErrInvalid, err)
	}
	return loc, nil
}

// OutputPath returns the workbook path for a run at now.
func (c *Config) OutputPath(now time.Time) string {
	return filepath.Join(c.Output.Dir, now.Format(c.Output.FilePattern))
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Source.Kind {
	case SourceCSV, SourceXLSX:
		if c.Source.Path == "" {
			invalid("source.path is required for %s sources", c.Source.Kind)
		}
	case SourceGSheet, SourceFeed:
		if c.Source.URL == "" {
			invalid("source.url is required for %s sources", c.Source.Kind)
		}
	default:
		invalid("source.kind must be csv, xlsx, gsheet, or feed, got %q", c.Source.Kind)
	}

	cols := c.Source.Columns
	if cols.URLColumn < 0 || cols.DateColumn < 0 {
		invalid("source.columns must not be negative")
	} else if cols.URLColumn == cols.DateColumn {
		invalid("source.columns.url_column and date_column must differ")
	}
	if len(cols.URLPrefixes) == 0 {
		invalid("source.columns.url_prefixes must not be empty")
	}

	if !slices.Contains([]string{FetchBrowser, FetchHTTP}, c.Fetch.Mode) {
		invalid("fetch.mode must be browser or http, got %q", c.Fetch.Mode)
	}
	if c.Fetch.Timeout <= 0 {
		invalid("fetch.timeout must be positive")
	}
	if c.Fetch.MinInterval < 0 || c.Fetch.Settle < 0 {
		invalid("fetch.min_interval and fetch.settle must not be negative")
	}
	if c.Fetch.MaxPages < 1 {
		invalid("fetch.max_pages must be at least 1")
	}

	if err := c.Extract.Selectors.Validate(); err != nil {
		invalid("extract.selectors: %v", err)
	}

	if c.Window.CutoverHour < 0 || c.Window.CutoverHour > 23 {
		invalid("window.cutover_hour must be between 0 and 23, got %d", c.Window.CutoverHour)
	}
	if _, err := time.LoadLocation(c.Window.Timezone); err != nil {
		invalid("window.timezone %q: %v", c.Window.Timezone, err)
	}

	if c.Output.FilePattern == "" {
		invalid("output.file_pattern is required")
	}

	if c.Upload.Enabled && c.Upload.Credentials == "" {
		invalid("upload.credentials is required when upload is enabled")
	}
	if c.Source.Kind == SourceGSheet && c.Upload.Credentials == "" {
		invalid("upload.credentials is required for gsheet sources")
	}

	if !logger.ValidLevel(c.Logging.Level) {
		invalid("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}

	return errors.Join(errs...)
}
