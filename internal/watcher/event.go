package watcher

import (
	"context"
	"fmt"
	"time"
)

// EventKind distinguishes file changes from newly appeared directories.
type EventKind int

const (
	FileChanged EventKind = iota
	DirectoryAppeared
)

func (k EventKind) String() string {
	switch k {
	case FileChanged:
		return "file"
	case DirectoryAppeared:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a candidate path for the pipeline. Path is absolute.
type Event struct {
	Kind    EventKind
	Path    string
	ModTime time.Time
}

// Watcher delivers events until ctx is done. Run returns nil on cancellation.
type Watcher interface {
	Run(ctx context.Context, out chan<- Event) error
}

// WatchError reports a walk or subscription failure. The affected subtree is
// skipped for the current pass only.
type WatchError struct {
	Op   string // "walk", "subscribe", "notify"
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}
