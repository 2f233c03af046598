package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArtifactExists reports whether a preview has been recorded for originalPath.
func (d *Database) ArtifactExists(ctx context.Context, originalPath string) (bool, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var count int64
	err := tx.Model(&PreviewArtifact{}).Where("original_path = ?", originalPath).Count(&count).Error
	recordQuery("artifact_exists", start, err)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateArtifact inserts a unless a row for the same original path exists.
func (d *Database) CreateArtifact(ctx context.Context, a *PreviewArtifact) (inserted bool, err error) {
	start := time.Now()
	defer func() { recordQuery("create_artifact", start, err) }()

	tx, cancel := d.session(ctx)
	defer cancel()

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_path"}},
		DoNothing: true,
	}).Create(a)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindPreviewOwner returns an artifact other than originalPath that already
// writes to previewPath, or nil.
func (d *Database) FindPreviewOwner(ctx context.Context, previewPath, originalPath string) (*PreviewArtifact, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var a PreviewArtifact
	err := tx.Where("preview_path = ? AND original_path <> ?", previewPath, originalPath).
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		recordQuery("find_preview_owner", start, nil)
		return nil, nil
	}
	recordQuery("find_preview_owner", start, err)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetArtifactsByIDs returns the artifacts among ids that exist, in no particular order.
func (d *Database) GetArtifactsByIDs(ctx context.Context, ids []string) ([]PreviewArtifact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var artifacts []PreviewArtifact
	err := tx.Where("id IN ?", ids).Find(&artifacts).Error
	recordQuery("get_artifacts", start, err)
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// ListArtifactsByDirectory returns the artifacts recorded under a directory, ordered by name.
func (d *Database) ListArtifactsByDirectory(ctx context.Context, directoryID string) ([]PreviewArtifact, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var artifacts []PreviewArtifact
	err := tx.Where("directory_id = ?", directoryID).Order("name ASC").Find(&artifacts).Error
	recordQuery("list_artifacts", start, err)
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}
