package database

import "time"

// RootPath is the normalized relative path of the watch root itself.
const RootPath = "."

// Directory is a watched directory. Path is relative to the watch root with
// forward slashes.
type Directory struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Path      string    `json:"path" gorm:"size:768;not null;uniqueIndex:idx_directories_path"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName overrides the gorm default.
func (Directory) TableName() string { return "directories" }

// PreviewArtifact records one generated preview. DPI, Dimension and Pixels
// are legacy columns and are never populated.
type PreviewArtifact struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	DirectoryID  *string   `json:"directory_id" gorm:"size:36;index:idx_preview_artifacts_directory"`
	PreviewPath  string    `json:"preview_path" gorm:"size:1024;not null"`
	OriginalPath string    `json:"original_path" gorm:"size:768;not null;uniqueIndex:idx_preview_artifacts_original"`
	OriginalSize int64     `json:"original_size" gorm:"not null;default:0"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	DPI          *int      `json:"dpi,omitempty"`
	Dimension    *string   `json:"dimension,omitempty" gorm:"size:64"`
	Pixels       *int64    `json:"pixels,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName overrides the gorm default.
func (PreviewArtifact) TableName() string { return "preview_artifacts" }

// ErrorLogEntry is an append-only failure or lifecycle message.
type ErrorLogEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_error_log_created"`
}

// TableName overrides the gorm default.
func (ErrorLogEntry) TableName() string { return "error_log" }

// PendingDownload is a bundle notification saved for a client that was not
// connected when the bundle became ready.
type PendingDownload struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ClientID  string    `json:"client_id" gorm:"size:255;not null;index:idx_pending_downloads_client"`
	ZipPath   string    `json:"zip_path" gorm:"size:1024;not null"`
	Pending   bool      `json:"pending" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName overrides the gorm default.
func (PendingDownload) TableName() string { return "pending_downloads" }
