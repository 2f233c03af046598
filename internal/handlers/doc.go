// Package handlers implements the HTTP surface of the preview watcher:
// bundle downloads, the browsing API, original/preview/bundle file serving,
// the WebSocket endpoint, and health and version probes.
//
// Authentication and CORS are applied by middleware; handlers assume the
// request has already been authorized.
package handlers
