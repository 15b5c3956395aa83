// Package metrics provides Prometheus metrics for harvest runs. A batch job
// has no scrape endpoint, so metrics are written to a node_exporter textfile
// when the run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsharvest"

// Record outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeArticleFailed  = "article_failed"
	OutcomeCommentsFailed = "comments_failed"
	OutcomeFailed         = "failed"
	OutcomePanicked       = "panicked"
)

// Walk kinds.
const (
	KindArticle  = "article"
	KindComments = "comments"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	// RecordsTotal counts processed records by outcome.
	RecordsTotal *prometheus.CounterVec
	// RecordDuration measures the time spent on one record.
	RecordDuration prometheus.Histogram
	// PagesTotal counts accepted pages by walk kind.
	PagesTotal *prometheus.CounterVec
	// WalkStopsTotal counts why walks ended.
	WalkStopsTotal *prometheus.CounterVec
	// CommentsTotal counts harvested comments, placeholders excluded.
	CommentsTotal prometheus.Counter
	// UnknownTimesTotal counts comment times that could not be read.
	UnknownTimesTotal prometheus.Counter
	// SkippedRowsTotal counts source rows left out for bad dates.
	SkippedRowsTotal prometheus.Counter
	// LastRunTimestamp is the Unix time the last run finished.
	LastRunTimestamp prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Total number of processed records by outcome",
			},
			[]string{"outcome"},
		),
		RecordDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_duration_seconds",
				Help:      "Duration of record processing in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		PagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Total number of accepted pages by walk kind",
			},
			[]string{"kind"},
		),
		WalkStopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "walk_stops_total",
				Help:      "Total number of page walks by kind and stop reason",
			},
			[]string{"kind", "stop"},
		),
		CommentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comments_total",
				Help:      "Total number of harvested comments",
			},
		),
		UnknownTimesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unknown_times_total",
				Help:      "Total number of comment times that could not be parsed",
			},
		),
		SkippedRowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_rows_total",
				Help:      "Total number of source rows skipped for unreadable dates",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}
}

// RecordRecord records one processed record.
func (m *Metrics) RecordRecord(outcome string, seconds float64) {
	m.RecordsTotal.WithLabelValues(outcome).Inc()
	m.RecordDuration.Observe(seconds)
}

// RecordWalk records the outcome of one page walk.
func (m *Metrics) RecordWalk(kind string, pages int, stop string) {
	m.PagesTotal.WithLabelValues(kind).Add(float64(pages))
	m.WalkStopsTotal.WithLabelValues(kind, stop).Inc()
}

// RecordComments records harvested comments and unreadable times.
func (m *Metrics) RecordComments(count, unknown int) {
	m.CommentsTotal.Add(float64(count))
	m.UnknownTimesTotal.Add(float64(unknown))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
