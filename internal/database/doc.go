// Package database persists preview-watcher state through gorm.
//
// Four tables are managed by AutoMigrate:
//   - directories: one row per watched directory, keyed by its relative path
//   - preview_artifacts: one row per source file that produced a preview
//   - error_log: append-only failure and lifecycle messages
//   - pending_downloads: bundle notifications waiting for an offline client
//
// The dialect is chosen from the location passed to New: a bare path or
// sqlite:// URL opens SQLite in WAL mode, mysql:// and postgres:// URLs open
// the matching gorm driver. Inserts that guard a natural key use
// ON CONFLICT DO NOTHING so concurrent writers cannot create duplicates.
package database
