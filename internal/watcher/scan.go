package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"
)

// emitFunc delivers one event. Returning an error aborts the walk.
type emitFunc func(Event) error

// discard is used for baseline walks.
func discard(Event) error { return nil }

// scanner walks a subtree, updating state and emitting changes.
type scanner struct {
	root     string
	excluder *Excluder
	state    *WatchState

	// readDir lists a directory; nil means filesystem.ReadDirWithRetry.
	readDir func(string) ([]os.DirEntry, error)
	// failed collects subtree roots skipped after a WatchError. It stays nil
	// for watchers whose next full pass revisits everything anyway.
	failed map[string]struct{}
}

func (s *scanner) markFailed(dir string) {
	if s.failed != nil {
		s.failed[dir] = struct{}{}
	}
}

// takeFailed returns and clears the recorded subtree roots, sorted.
func (s *scanner) takeFailed() []string {
	dirs := make([]string, 0, len(s.failed))
	for dir := range s.failed {
		dirs = append(dirs, dir)
	}
	clear(s.failed)
	slices.Sort(dirs)
	return dirs
}

// scan walks dir. It returns the number of WatchErrors hit (the walk
// continues past them) and a non-nil error only when emit or ctx aborted it.
func (s *scanner) scan(ctx context.Context, dir string, emit emitFunc) (int, error) {
	failures := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			failures++
			reportError(&WatchError{Op: "walk", Path: path, Err: err})
			if d == nil || d.IsDir() {
				s.markFailed(path)
				return filepath.SkipDir
			}
			s.markFailed(filepath.Dir(path))
			return nil
		}

		if s.excluder.Excluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			readable, err := s.visitDir(path, emit)
			if !readable {
				failures++
				s.markFailed(path)
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between readdir and stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			failures++
			reportError(&WatchError{Op: "walk", Path: path, Err: err})
			s.markFailed(filepath.Dir(path))
			return nil
		}
		if s.state.ObserveFile(path, info.ModTime()) {
			return emit(Event{Kind: FileChanged, Path: path, ModTime: info.ModTime()})
		}
		return nil
	})
	return failures, err
}

// visitDir registers path and reports whether it could be listed. An
// unreadable directory is skipped along with everything below it.
func (s *scanner) visitDir(path string, emit emitFunc) (bool, error) {
	if path == s.root {
		s.state.MarkDirectory(path)
		return true, nil
	}

	readDir := s.readDir
	if readDir == nil {
		readDir = func(dir string) ([]os.DirEntry, error) {
			return filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
		}
	}
	entries, err := readDir(path)
	if err != nil {
		reportError(&WatchError{Op: "walk", Path: path, Err: err})
		return false, nil
	}
	if len(entries) == 0 {
		if s.state.NoteEmpty(path) {
			logging.Info("Empty directory ignored: %s", path)
		}
		return true, nil
	}
	if s.state.MarkDirectory(path) {
		return true, emit(Event{Kind: DirectoryAppeared, Path: path})
	}
	return true, nil
}

// fullPass walks the whole root once and prunes state entries that no longer exist.
func (s *scanner) fullPass(ctx context.Context, emit emitFunc) error {
	start := time.Now()
	s.state.beginPass()
	failures, err := s.scan(ctx, s.root, emit)
	s.state.endPass(err == nil && failures == 0)
	metrics.WatcherPassDuration.Observe(time.Since(start).Seconds())
	metrics.WatchedDirectories.Set(float64(s.state.Directories()))
	return err
}

func reportError(err *WatchError) {
	logging.Warn("%v", err)
	metrics.WatcherErrorsTotal.Inc()
}

// send delivers ev on out unless ctx is done first.
func send(ctx context.Context, out chan<- Event, ev Event) error {
	select {
	case out <- ev:
		metrics.WatcherEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
