package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindDirectoryByPath returns the directory with the given relative path, or
// nil when none exists.
func (d *Database) FindDirectoryByPath(ctx context.Context, path string) (*Directory, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var dir Directory
	err := tx.Where("path = ?", path).First(&dir).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		recordQuery("find_directory", start, nil)
		return nil, nil
	}
	recordQuery("find_directory", start, err)
	if err != nil {
		return nil, err
	}
	return &dir, nil
}

// CreateDirectory inserts dir unless a row with the same path exists.
// inserted is false when another writer got there first.
func (d *Database) CreateDirectory(ctx context.Context, dir *Directory) (inserted bool, err error) {
	start := time.Now()
	defer func() { recordQuery("create_directory", start, err) }()

	tx, cancel := d.session(ctx)
	defer cancel()

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoNothing: true,
	}).Create(dir)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetDirectory returns the directory with id, or nil when none exists.
func (d *Database) GetDirectory(ctx context.Context, id string) (*Directory, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var dir Directory
	err := tx.Where("id = ?", id).First(&dir).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		recordQuery("find_directory", start, nil)
		return nil, nil
	}
	recordQuery("find_directory", start, err)
	if err != nil {
		return nil, err
	}
	return &dir, nil
}

// ListDirectories returns every registered directory ordered by path.
func (d *Database) ListDirectories(ctx context.Context) ([]Directory, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var dirs []Directory
	err := tx.Order("path ASC").Find(&dirs).Error
	recordQuery("list_directories", start, err)
	if err != nil {
		return nil, err
	}
	return dirs, nil
}
