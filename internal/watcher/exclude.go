package watcher

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"

	"preview-watcher/internal/mediatypes"
)

// Excluder decides which paths below the root are ignored.
type Excluder struct {
	root     string
	patterns []glob.Glob
	skipDirs map[string]bool
}

// NewExcluder compiles patterns, matched against slash-separated paths
// relative to root. skipDirs are absolute directories pruned entirely, such
// as a preview tree nested inside the watch root.
func NewExcluder(root string, patterns, skipDirs []string) (*Excluder, error) {
	ex := &Excluder{root: filepath.Clean(root), skipDirs: make(map[string]bool)}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		ex.patterns = append(ex.patterns, g)
	}
	for _, d := range skipDirs {
		if d != "" {
			ex.skipDirs[filepath.Clean(d)] = true
		}
	}
	return ex, nil
}

// Excluded reports whether absPath is hidden, pruned, or matches a pattern.
// The root itself is never excluded.
func (e *Excluder) Excluded(absPath string) bool {
	absPath = filepath.Clean(absPath)
	if absPath == e.root {
		return false
	}
	if mediatypes.IsHidden(filepath.Base(absPath)) {
		return true
	}
	if e.skipDirs[absPath] {
		return true
	}
	if len(e.patterns) == 0 {
		return false
	}

	rel, err := filepath.Rel(e.root, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(absPath)
	for _, g := range e.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
