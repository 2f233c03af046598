// Package watcher reports files that may need a new preview.
//
// Two strategies implement Watcher:
//
//   - PushWatcher subscribes to fsnotify events for every visible directory
//     and debounces bursts of writes to a single event per file.
//   - PollWatcher walks the whole tree on a fixed interval and compares
//     modification times against its WatchState.
//
// Both seed a baseline from the existing tree on startup unless a forced
// resync is requested, skip hidden entries (and whole hidden directories),
// and honour glob exclusions. Delivery is at least once: consumers must
// tolerate duplicates.
package watcher
