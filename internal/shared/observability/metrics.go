package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	WorkerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resym_worker_request_seconds",
		Help:    "Round-trip time for a worker protocol request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	WorkerRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resym_worker_request_errors_total",
		Help: "Total number of failed worker protocol requests.",
	}, []string{"op"})

	WorkerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_worker_restarts_total",
		Help: "Total number of collaborator process restarts.",
	})

	ParseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_parse_cache_hits_total",
		Help: "Total number of parse cache hits.",
	})

	ParseCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_parse_cache_misses_total",
		Help: "Total number of parse cache misses.",
	})

	ParseCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_parse_cache_evictions_total",
		Help: "Total number of parse cache entries evicted under the capacity bound.",
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resym_analysis_seconds",
		Help:    "Time spent in each analysis phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	FilesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_files_analyzed_total",
		Help: "Total number of files run through scope and reference analysis.",
	})

	FileAnalysisFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_file_analysis_failures_total",
		Help: "Total number of per-file analysis failures.",
	})

	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resym_plans_total",
		Help: "Total number of rename plans by outcome.",
	}, []string{"outcome"})

	PlanEdits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resym_plan_edits",
		Help:    "Number of edits per accepted rename plan.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	FilesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_files_written_total",
		Help: "Total number of files rewritten by the diff applier.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resym_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
