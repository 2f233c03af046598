// Package middleware provides the HTTP middleware chain of the preview
// watcher: W3C access logging, Prometheus request metrics, gzip compression,
// CORS for the configured web origin, and bearer token authentication.
package middleware
