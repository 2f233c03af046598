// Package metrics provides Prometheus instrumentation for preview-watcher.
//
// All metrics are registered with promauto and prefixed "preview_watcher_".
// Categories:
//
//   - HTTP: requests, durations, in-flight, bearer auth outcomes
//   - Database: query counts and durations by operation, open connections
//   - Store totals: directories, artifacts, error log rows (see Collector)
//   - Watcher: emitted events by kind, walk errors, tracked directories
//   - Pipeline: results by terminal state, in-flight work, coalesced events
//   - Preview: decode duration by strategy, render duration by backend
//   - Bundles: ZIP builds, sizes, janitor runs
//   - WebSocket: connected clients, notifications by delivery
//   - Memory and filesystem retry health
//
// The metrics endpoint is served on METRICS_PORT by main.
package metrics
