package registry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"preview-watcher/internal/database"
	"preview-watcher/internal/logging"
)

// DirectoryStore is the subset of the database used for directories.
type DirectoryStore interface {
	FindDirectoryByPath(ctx context.Context, path string) (*database.Directory, error)
	CreateDirectory(ctx context.Context, dir *database.Directory) (bool, error)
}

// DirectoryRegistry assigns stable identifiers to directories under root.
type DirectoryRegistry struct {
	root  string
	store DirectoryStore
}

// NewDirectoryRegistry creates a registry for directories below root.
func NewDirectoryRegistry(root string, store DirectoryStore) *DirectoryRegistry {
	return &DirectoryRegistry{root: filepath.Clean(root), store: store}
}

// RelativePath returns absPath relative to root with forward slashes. The
// root itself maps to ".".
func RelativePath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absPath))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.ToSlash(rel), nil
}

// EnsureRegistered returns the identifier of the directory row for absDir,
// inserting it on first sight.
func (r *DirectoryRegistry) EnsureRegistered(ctx context.Context, absDir string) (string, error) {
	rel, err := RelativePath(r.root, absDir)
	if err != nil {
		return "", &RegistryError{Op: "resolve", Path: absDir, Err: err}
	}

	existing, err := r.store.FindDirectoryByPath(ctx, rel)
	if err != nil {
		return "", &RegistryError{Op: "lookup", Path: rel, Err: err}
	}
	if existing != nil {
		return existing.ID, nil
	}

	dir := &database.Directory{
		ID:   uuid.NewString(),
		Name: directoryName(r.root, absDir, rel),
		Path: rel,
	}
	inserted, err := r.store.CreateDirectory(ctx, dir)
	if err != nil {
		return "", &RegistryError{Op: "insert", Path: rel, Err: err}
	}
	if inserted {
		logging.Info("New directory registered: %s (%s)", rel, dir.ID)
		return dir.ID, nil
	}

	// Another worker inserted the same path between our lookup and insert.
	winner, err := r.store.FindDirectoryByPath(ctx, rel)
	if err != nil {
		return "", &RegistryError{Op: "lookup", Path: rel, Err: err}
	}
	if winner == nil {
		return "", &RegistryError{Op: "lookup", Path: rel, Err: errors.New("row vanished after conflicting insert")}
	}
	return winner.ID, nil
}

func directoryName(root, absDir, rel string) string {
	if rel == database.RootPath {
		return filepath.Base(root)
	}
	return filepath.Base(absDir)
}

