package registry

import (
	"context"

	"preview-watcher/internal/database"
)

// ArtifactStore is the subset of the database used for preview artifacts.
type ArtifactStore interface {
	ArtifactExists(ctx context.Context, originalPath string) (bool, error)
	CreateArtifact(ctx context.Context, a *database.PreviewArtifact) (bool, error)
}

// FileRegistry records rendered source files at most once.
type FileRegistry struct {
	store ArtifactStore
}

// NewFileRegistry creates a FileRegistry backed by store.
func NewFileRegistry(store ArtifactStore) *FileRegistry {
	return &FileRegistry{store: store}
}

// IsAlreadyRegistered reports whether originalPath already has a recorded preview.
func (r *FileRegistry) IsAlreadyRegistered(ctx context.Context, originalPath string) (bool, error) {
	exists, err := r.store.ArtifactExists(ctx, originalPath)
	if err != nil {
		return false, &RegistryError{Op: "lookup", Path: originalPath, Err: err}
	}
	return exists, nil
}

// Record inserts the artifact row. inserted is false when a row for the same
// original path already exists, including one written concurrently.
func (r *FileRegistry) Record(ctx context.Context, a *database.PreviewArtifact) (inserted bool, err error) {
	inserted, err = r.store.CreateArtifact(ctx, a)
	if err != nil {
		return false, &RegistryError{Op: "insert", Path: a.OriginalPath, Err: err}
	}
	return inserted, nil
}
