// Package startup handles configuration loading and the sectioned startup and
// shutdown log output.
//
// # Configuration
//
// [LoadConfig] reads environment variables, falling back to an optional YAML
// file named by CONFIG_FILE whose keys are the same variable names. Legacy names
// are accepted after the primary one:
//
//   - WATCH_DIR (INTERNAL_PATH): tree to watch (default: /data)
//   - PREVIEW_DIR (PREVIEW_PATH): preview output root (default: /previews)
//   - DATABASE_DIR: directory for the default SQLite file (default: /database)
//   - DB_URL: sqlite://, mysql:// or postgres:// URL; overrides DATABASE_DIR
//   - AUTH_TOKEN (AUTH) or AUTH_TOKEN_HASH: bearer credential for the HTTP API
//   - WEB_URL: the single CORS origin (default: *)
//   - QUALITY: JPEG quality 1-100 (default: 50)
//   - PIXEL_LIMIT: longest preview edge in pixels (default: 1200)
//   - MAGICK_PATH (MAGIC_PATH): ImageMagick binary for complex TIFF fallback
//   - WATCH_MODE: push or poll (default: push)
//   - POLL_INTERVAL, WATCH_DEBOUNCE: Go durations (defaults: 1s, 250ms)
//   - FORCE_RESYNC: process every existing file on startup (default: false)
//   - EXCLUDE_PATTERNS: comma separated globs relative to WATCH_DIR
//   - ZIP_DIR (ZIP_PATH), CLEAN_ZIP_DAYS, CLEAN_ZIP_SCHEDULE: bundle storage and janitor
//   - HOST (IP_SERVER), PORT, SOCKET_PORT, METRICS_PORT, METRICS_ENABLED
//   - STATIC_DIR, PERMISSIONS_URL, SHUTDOWN_GRACE
//   - LOG_LEVEL, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
