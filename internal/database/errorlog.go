package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppendErrorLog writes message to the error_log table.
func (d *Database) AppendErrorLog(ctx context.Context, message string) error {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	err := tx.Create(&ErrorLogEntry{ID: uuid.NewString(), Message: message}).Error
	recordQuery("append_error_log", start, err)
	return err
}

// RecentErrorLog returns up to limit entries, newest first.
func (d *Database) RecentErrorLog(ctx context.Context, limit int) ([]ErrorLogEntry, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var entries []ErrorLogEntry
	err := tx.Order("created_at DESC").Limit(limit).Find(&entries).Error
	recordQuery("list_error_log", start, err)
	return entries, err
}
