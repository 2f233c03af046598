package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

const megabyte = 1024 * 1024

// ErrEmpty is returned when none of the requested files exist.
var ErrEmpty = errors.New("no files to bundle")

// Bundle describes a finished archive.
type Bundle struct {
	Path    string
	Name    string
	Entries int
	Size    int64
	Missing []string
}

// Builder writes ZIP archives into a staging directory.
type Builder struct {
	dir string
}

// NewBuilder returns a Builder that writes into dir. An empty dir means the
// system temporary directory.
func NewBuilder(dir string) *Builder {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Builder{dir: dir}
}

// Dir returns the staging directory.
func (b *Builder) Dir() string {
	return b.dir
}

// countingWriter tracks how many bytes reached the archive file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Build archives files into a new ZIP and returns its description. The
// caller owns the resulting file. A partially written archive is removed on
// error.
func (b *Builder) Build(ctx context.Context, files []string) (*Bundle, error) {
	start := time.Now()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	name := "bundle-" + uuid.NewString() + ".zip"
	zipPath := filepath.Join(b.dir, name)
	logging.Info("Creating ZIP file at: %s", zipPath)

	var totalOriginal int64
	present := make([]string, 0, len(files))
	missing := make([]string, 0)
	for _, path := range files {
		info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil || !info.Mode().IsRegular() {
			logging.Warn("File not found: %s", path)
			missing = append(missing, path)
			continue
		}
		totalOriginal += info.Size()
		present = append(present, path)
	}
	logging.Info("Total size of original files: %.2f MB", float64(totalOriginal)/megabyte)

	if len(present) == 0 {
		return nil, ErrEmpty
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip file: %w", err)
	}

	cw := &countingWriter{w: f}
	zw := zip.NewWriter(cw)

	fail := func(err error) (*Bundle, error) {
		_ = zw.Close()
		_ = f.Close()
		if rmErr := os.Remove(zipPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("Failed to remove partial zip %s: %v", zipPath, rmErr)
		}
		return nil, err
	}

	for _, path := range present {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		arcName := filepath.Base(path)
		if err := addFile(zw, path, arcName); err != nil {
			return fail(fmt.Errorf("failed to add %s: %w", path, err))
		}
		if err := zw.Flush(); err != nil {
			return fail(fmt.Errorf("failed to flush zip: %w", err))
		}

		logging.Info("Added file to ZIP: %s as %s. Current ZIP size: %.2f MB. Compression: %.2f%%",
			path, arcName, float64(cw.n)/megabyte, compressionPercent(cw.n, totalOriginal))
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("failed to finish zip: %w", err))
	}
	if err := f.Close(); err != nil {
		return fail(fmt.Errorf("failed to close zip: %w", err))
	}

	logging.Info("ZIP file created successfully at: %s. Final size: %.2f MB. Total compression: %.2f%%",
		zipPath, float64(cw.n)/megabyte, compressionPercent(cw.n, totalOriginal))

	metrics.BundleBuildDuration.Observe(time.Since(start).Seconds())
	metrics.BundleSizeBytes.Observe(float64(cw.n))

	return &Bundle{
		Path:    zipPath,
		Name:    name,
		Entries: len(present),
		Size:    cw.n,
		Missing: missing,
	}, nil
}

func addFile(zw *zip.Writer, path, arcName string) error {
	src, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = arcName
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func compressionPercent(zipSize, originalSize int64) float64 {
	if originalSize <= 0 {
		return 100
	}
	return float64(zipSize) / float64(originalSize) * 100
}
