package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_auth_attempts_total",
			Help: "Total number of bearer token checks",
		},
		[]string{"status"}, // "success", "failure", "unconfigured"
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Store totals, refreshed by the Collector
var (
	DirectoriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_directories_total",
			Help: "Number of registered directories",
		},
	)

	ArtifactsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_artifacts_total",
			Help: "Number of recorded preview artifacts",
		},
	)

	ErrorLogEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_error_log_entries",
			Help: "Number of rows in the error log",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_watcher_events_total",
			Help: "Total number of change events emitted by the watcher",
		},
		[]string{"kind"}, // "file", "directory"
	)

	WatcherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_watcher_watcher_errors_total",
			Help: "Total number of walk or subscription errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_watched_directories",
			Help: "Number of directories currently subscribed or tracked",
		},
	)

	WatcherPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_watcher_pass_duration_seconds",
			Help:    "Duration of a full tree walk in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Pipeline metrics
var (
	PipelineResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_pipeline_results_total",
			Help: "Total number of pipeline passes by terminal state",
		},
		[]string{"state"},
	)

	PipelineInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_pipeline_in_flight",
			Help: "Number of files currently being processed",
		},
	)

	PipelineCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_watcher_pipeline_coalesced_total",
			Help: "Events folded into an already queued or running pass for the same path",
		},
	)

	PipelineWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_pipeline_workers",
			Help: "Number of pipeline workers",
		},
	)
)

// Preview metrics
var (
	PreviewDecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_decode_duration_seconds",
			Help:    "Source decode duration in seconds by strategy",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"strategy"},
	)

	PreviewRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_render_duration_seconds",
			Help:    "Preview render duration in seconds by backend",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	PreviewRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_renders_total",
			Help: "Total number of preview renders by backend and status",
		},
		[]string{"backend", "status"},
	)

	PreviewBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_watcher_preview_bytes_written_total",
			Help: "Total bytes of JPEG previews written",
		},
	)
)

// Bundle metrics
var (
	BundlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_bundles_total",
			Help: "Total number of ZIP bundles built",
		},
		[]string{"delivery", "status"}, // delivery: "stream", "async"
	)

	BundleBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_bundle_build_duration_seconds",
			Help:    "ZIP bundle build duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	BundleSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_bundle_size_bytes",
			Help:    "Size of built ZIP bundles in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10),
		},
	)

	JanitorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_janitor_runs_total",
			Help: "Total number of bundle janitor runs",
		},
		[]string{"status"},
	)

	JanitorFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_watcher_janitor_files_removed_total",
			Help: "Total number of expired bundles removed",
		},
	)
)

// WebSocket metrics
var (
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_notifications_total",
			Help: "Total number of bundle notifications by delivery",
		},
		[]string{"delivery"}, // "sent", "pending", "replayed", "error"
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_watcher_memory_paused",
			Help: "Whether decoding is paused on memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_watcher_memory_gc_pauses_total",
			Help: "Number of times processing paused for memory pressure",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_filesystem_retry_attempts_total",
			Help: "Retry attempts after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_filesystem_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_filesystem_retry_failures_total",
			Help: "Operations that exhausted their retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preview_watcher_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_watcher_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retrying filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preview_watcher_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
