// Package ledger records harvest runs and their per-row results in SQLite.
// A row may be recorded once per run; the unique key is (run, row position).
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrAlreadyRecorded = errors.New("row already recorded for this run")
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Store manages the ledger database.
type Store struct {
	db *sql.DB
}

// Run is one invocation of the harvester.
type Run struct {
	RunID       uuid.UUID
	Source      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Status      string
	Output      string
	RemoteID    string
	Records     int
	Failures    int
}

// RunUpdate holds the fields written when a run ends.
type RunUpdate struct {
	FinishedAt time.Time
	Status     string
	Output     string
	RemoteID   string
	Records    int
	Failures   int
}

// Entry is the recorded outcome for one source row.
type Entry struct {
	RowPosition int
	URL         string
	Sheet       string
	Title       string
	BodyPages   int
	// CommentCount is nil when the comments could not be read.
	CommentCount  *int
	ArticleError  string
	CommentsError string
	RecordedAt    time.Time
}

// NewStore opens or creates the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		status TEXT NOT NULL,
		output TEXT,
		remote_id TEXT,
		records INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		row_position INTEGER NOT NULL,
		url TEXT NOT NULL,
		sheet TEXT,
		title TEXT,
		body_pages INTEGER DEFAULT 0,
		comment_count INTEGER,
		article_error TEXT,
		comments_error TEXT,
		recorded_at TEXT NOT NULL,
		UNIQUE (run_id, row_position)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun starts a new run in the running state.
func (s *Store) CreateRun(source string, startedAt, windowStart, windowEnd time.Time) (*Run, error) {
	run := &Run{
		RunID:       uuid.New(),
		Source:      source,
		StartedAt:   startedAt,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      StatusRunning,
	}

	query := `
		INSERT INTO runs (run_id, source, started_at, window_start, window_end, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.RunID.String(),
		run.Source,
		formatTime(&run.StartedAt),
		formatTime(&run.WindowStart),
		formatTime(&run.WindowEnd),
		run.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return run, nil
}

// Record stores the result of one row. Recording the same row twice in a
// run returns ErrAlreadyRecorded.
func (s *Store) Record(runID uuid.UUID, e Entry) error {
	if _, err := s.GetRun(runID); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO results (
			run_id, row_position, url, sheet, title, body_pages,
			comment_count, article_error, comments_error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		runID.String(),
		e.RowPosition,
		e.URL,
		e.Sheet,
		e.Title,
		e.BodyPages,
		e.CommentCount,
		nullString(e.ArticleError),
		nullString(e.CommentsError),
		formatTime(&e.RecordedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return ErrAlreadyRecorded
		}
		return fmt.Errorf("failed to insert result: %w", err)
	}

	return nil
}

// Results returns the entries of a run ordered by row position.
func (s *Store) Results(runID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT row_position, url, sheet, title, body_pages, comment_count,
		       article_error, comments_error, recorded_at
		FROM results
		WHERE run_id = ?
		ORDER BY row_position
	`
	rows, err := s.db.Query(query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var sheet, title, articleErr, commentsErr sql.NullString
		var count sql.NullInt64
		var recordedAt string

		if err := rows.Scan(&e.RowPosition, &e.URL, &sheet, &title, &e.BodyPages,
			&count, &articleErr, &commentsErr, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		e.Sheet = sheet.String
		e.Title = title.String
		e.ArticleError = articleErr.String
		e.CommentsError = commentsErr.String
		e.RecordedAt = parseTime(recordedAt)
		if count.Valid {
			c := int(count.Int64)
			e.CommentCount = &c
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// FinishRun stores the final state of a run.
func (s *Store) FinishRun(runID uuid.UUID, u RunUpdate) error {
	query := `
		UPDATE runs
		SET finished_at = ?, status = ?, output = ?, remote_id = ?, records = ?, failures = ?
		WHERE run_id = ?
	`
	result, err := s.db.Exec(query,
		formatTime(&u.FinishedAt),
		u.Status,
		nullString(u.Output),
		nullString(u.RemoteID),
		u.Records,
		u.Failures,
		runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `run_id, source, started_at, finished_at, window_start, window_end,
	status, output, remote_id, records, failures`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID.String())

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns all runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var runID, source, startedAt, windowStart, windowEnd, status string
	var finishedAt, output, remoteID sql.NullString
	var run Run

	err := row.Scan(&runID, &source, &startedAt, &finishedAt, &windowStart, &windowEnd,
		&status, &output, &remoteID, &run.Records, &run.Failures)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	run.RunID = id
	run.Source = source
	run.StartedAt = parseTime(startedAt)
	run.WindowStart = parseTime(windowStart)
	run.WindowEnd = parseTime(windowEnd)
	run.Status = status
	run.Output = output.String
	run.RemoteID = remoteID.String
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	// Strip monotonic clock for consistent comparisons
	return t.Truncate(0)
}
