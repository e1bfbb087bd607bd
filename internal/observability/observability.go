// Package observability provides structured logging and Prometheus metrics
// for the collection engine.
package observability

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts jobs created, by type.
	JobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_jobs_created_total",
		Help: "The total number of collection jobs created",
	}, []string{"type"})

	// JobsFinished counts jobs reaching a terminal state, by type and status.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_jobs_finished_total",
		Help: "The total number of jobs reaching a terminal state",
	}, []string{"type", "status"})

	// PostsIngested counts ingested records by outcome (collected, skipped, failed).
	PostsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_posts_ingested_total",
		Help: "The total number of raw records processed by the ingestor",
	}, []string{"outcome"})

	// SchedulerTicksSkipped counts scheduler ticks skipped because a job was
	// already running.
	SchedulerTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_scheduler_ticks_skipped_total",
		Help: "The total number of scheduler ticks skipped due to a running job",
	})

	// CollectionDuration observes end-to-end job durations, by source.
	CollectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collector_job_duration_seconds",
		Help:    "Duration of collection jobs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"source"})

	// ScraperDroppedRecords counts articles the scraper could not parse.
	ScraperDroppedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_scraper_dropped_records_total",
		Help: "The total number of timeline articles dropped as unparsable",
	})
)

// NewLogger creates a structured JSON logger.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
