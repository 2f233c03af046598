package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SavePendingDownload stores a ready bundle for a client that is offline.
func (d *Database) SavePendingDownload(ctx context.Context, clientID, zipPath string) error {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	err := tx.Create(&PendingDownload{
		ID:       uuid.NewString(),
		ClientID: clientID,
		ZipPath:  zipPath,
		Pending:  true,
	}).Error
	recordQuery("save_pending", start, err)
	return err
}

// PendingDownloads returns the undelivered notifications for clientID, oldest first.
func (d *Database) PendingDownloads(ctx context.Context, clientID string) ([]PendingDownload, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	var rows []PendingDownload
	err := tx.Where("client_id = ? AND pending = ?", clientID, true).
		Order("created_at ASC").
		Find(&rows).Error
	recordQuery("list_pending", start, err)
	return rows, err
}

// DeletePendingDownloads removes every pending row for clientID.
func (d *Database) DeletePendingDownloads(ctx context.Context, clientID string) (int64, error) {
	start := time.Now()
	tx, cancel := d.session(ctx)
	defer cancel()

	result := tx.Where("client_id = ?", clientID).Delete(&PendingDownload{})
	recordQuery("delete_pending", start, result.Error)
	return result.RowsAffected, result.Error
}
