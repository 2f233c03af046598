// Package logging provides the leveled logger used throughout preview-watcher.
//
// Levels, lowest first:
//   - DEBUG: per-event watcher and pipeline traces
//   - INFO: lifecycle, registrations, completed previews
//   - WARN: degraded behaviour (no libvips, skipped subtrees)
//   - ERROR: failed files and store errors
//   - FATAL: startup failures that terminate the process
//
// The level is taken from DEBUG or LOG_LEVEL and may be overridden with SetLevel
// once the configuration file has been read.
package logging
