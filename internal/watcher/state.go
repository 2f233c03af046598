package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// WatchState caches what the watcher has already seen. It is owned by a
// single watcher goroutine and is not safe for concurrent use.
type WatchState struct {
	files       map[string]time.Time
	dirs        map[string]bool
	loggedEmpty map[string]bool
	visited     map[string]bool
}

// NewWatchState returns an empty state.
func NewWatchState() *WatchState {
	return &WatchState{
		files:       make(map[string]time.Time),
		dirs:        make(map[string]bool),
		loggedEmpty: make(map[string]bool),
	}
}

// ObserveFile records modTime for path and reports whether it is new or changed.
func (s *WatchState) ObserveFile(path string, modTime time.Time) bool {
	if s.visited != nil {
		s.visited[path] = true
	}
	prev, ok := s.files[path]
	s.files[path] = modTime
	return !ok || !prev.Equal(modTime)
}

// MarkDirectory records dir as seen and reports whether it was new.
func (s *WatchState) MarkDirectory(dir string) bool {
	if s.visited != nil {
		s.visited[dir] = true
	}
	if s.dirs[dir] {
		return false
	}
	s.dirs[dir] = true
	delete(s.loggedEmpty, dir)
	return true
}

// NoteEmpty reports whether dir is reported empty for the first time.
func (s *WatchState) NoteEmpty(dir string) bool {
	if s.loggedEmpty[dir] {
		return false
	}
	s.loggedEmpty[dir] = true
	return true
}

// Forget drops path and everything recorded below it.
func (s *WatchState) Forget(path string) {
	prefix := path + string(filepath.Separator)
	for p := range s.files {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(s.files, p)
		}
	}
	for d := range s.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
		}
	}
}

// beginPass starts tracking which entries a full walk visits.
func (s *WatchState) beginPass() {
	s.visited = make(map[string]bool, len(s.files)+len(s.dirs))
}

// endPass drops entries a complete walk did not visit. After an aborted or
// partial walk, pass complete=false so nothing is dropped.
func (s *WatchState) endPass(complete bool) {
	visited := s.visited
	s.visited = nil
	if !complete {
		return
	}
	for p := range s.files {
		if !visited[p] {
			delete(s.files, p)
		}
	}
	for d := range s.dirs {
		if !visited[d] {
			delete(s.dirs, d)
		}
	}
}

// Files returns the number of tracked files.
func (s *WatchState) Files() int { return len(s.files) }

// Directories returns the number of directories marked seen.
func (s *WatchState) Directories() int { return len(s.dirs) }
