package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/mediatypes"
	"preview-watcher/internal/metrics"
)

// Render stages reported by RenderError.
const (
	StageResize = "resize"
	StageEncode = "encode"
	StageWrite  = "write"
	StageICC    = "icc"
)

// RenderError reports a resize, encode or write failure for one preview.
type RenderError struct {
	Path  string
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// RendererConfig configures a Renderer.
type RendererConfig struct {
	Quality      int
	MaxDimension int
	MagickPath   string
	// Encoder defaults to NewEncoder().
	Encoder Encoder
}

// Renderer writes bounded JPEG previews.
type Renderer struct {
	quality      int
	maxDimension int
	magickPath   string
	encoder      Encoder
}

// NewRenderer creates a Renderer.
func NewRenderer(cfg RendererConfig) *Renderer {
	enc := cfg.Encoder
	if enc == nil {
		enc = NewEncoder()
	}
	return &Renderer{
		quality:      encoderQuality(cfg.Quality),
		maxDimension: cfg.MaxDimension,
		magickPath:   cfg.MagickPath,
		encoder:      enc,
	}
}

// encoderQuality maps the 0-100 quality scale onto the 1-100 range the
// JPEG backends accept.
func encoderQuality(q int) int {
	return min(max(q, 1), 100)
}

// OutputPath derives the preview location for src: the directory of src
// relative to root, mirrored under previewRoot, holding {stem}.jpeg.
// Two sources with the same stem in one directory share a preview.
func OutputPath(root, previewRoot, src string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(src))
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", src, root)
	}

	dir, name := path.Split(rel)
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		stem = name
	}
	return filepath.Join(previewRoot, filepath.FromSlash(dir), stem+mediatypes.PreviewExt), nil
}

// scaleFactor returns the factor that brings the longest edge down to
// maxDimension, or 1 when the image already fits.
func scaleFactor(width, height, maxDimension int) float64 {
	longest := max(width, height)
	if maxDimension <= 0 || longest <= maxDimension {
		return 1
	}
	return float64(maxDimension) / float64(longest)
}

// boundedSize returns the target size for a width x height image whose
// longest edge must not exceed maxDimension.
func boundedSize(width, height, maxDimension int) (int, int) {
	scale := scaleFactor(width, height, maxDimension)
	if scale == 1 {
		return width, height
	}
	w := max(1, int(math.Round(float64(width)*scale)))
	h := max(1, int(math.Round(float64(height)*scale)))
	if width >= height {
		w = maxDimension
	} else {
		h = maxDimension
	}
	return w, h
}

// Render writes raster as a JPEG preview at outputPath, creating parent
// directories. The file only appears at outputPath once fully written.
func (r *Renderer) Render(ctx context.Context, raster *Raster, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return &RenderError{Path: outputPath, Stage: StageWrite, Err: err}
	}
	if raster.Strategy == StrategyComplexTIFF {
		return r.renderComplexTIFF(ctx, raster.Source, outputPath)
	}
	if raster.Image == nil {
		return &RenderError{Path: outputPath, Stage: StageResize, Err: errors.New("raster has no image")}
	}
	return r.renderImage(raster.Image, outputPath, r.encoder.Name())
}

func (r *Renderer) renderImage(img image.Image, outputPath, backend string) error {
	start := time.Now()

	b := img.Bounds()
	w, h := boundedSize(b.Dx(), b.Dy(), r.maxDimension)
	if w != b.Dx() || h != b.Dy() {
		logging.Debug("Resizing %s from %dx%d to %dx%d", filepath.Base(outputPath), b.Dx(), b.Dy(), w, h)
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	data, err := r.encoder.Encode(img, r.quality)
	if err != nil {
		observeRender(backend, start, err)
		return &RenderError{Path: outputPath, Stage: StageEncode, Err: err}
	}
	if err := writeAtomic(outputPath, data); err != nil {
		observeRender(backend, start, err)
		return &RenderError{Path: outputPath, Stage: StageWrite, Err: err}
	}
	observeRender(backend, start, nil)
	metrics.PreviewBytesWritten.Add(float64(len(data)))
	return nil
}

// renderComplexTIFF tries the profile-aware backends in order: libvips,
// ImageMagick, then a plain TIFF decode that ignores the profile.
func (r *Renderer) renderComplexTIFF(ctx context.Context, src, outputPath string) error {
	if IsVipsAvailable() {
		start := time.Now()
		data, err := renderICCWithVips(src, r.quality, r.maxDimension)
		if err == nil {
			err = writeAtomic(outputPath, data)
		}
		observeRender("vips_icc", start, err)
		if err == nil {
			metrics.PreviewBytesWritten.Add(float64(len(data)))
			return nil
		}
		logging.Warn("libvips ICC conversion failed for %s: %v", src, err)
	}

	if r.magickPath != "" {
		start := time.Now()
		err := r.renderMagick(ctx, src, outputPath)
		observeRender("magick", start, err)
		if err == nil {
			return nil
		}
		logging.Warn("ImageMagick conversion failed for %s: %v", src, err)
	}

	if err := ctx.Err(); err != nil {
		return &RenderError{Path: outputPath, Stage: StageICC, Err: err}
	}

	logging.Warn("No profile-aware backend succeeded for %s; converting without ICC profile", src)
	img, err := decodeSimpleTIFF(src)
	if err != nil {
		return &RenderError{Path: outputPath, Stage: StageICC, Err: err}
	}
	return r.renderImage(img, outputPath, "tiff_fallback")
}

func (r *Renderer) renderMagick(ctx context.Context, src, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	// The temporary name keeps the .jpeg suffix so ImageMagick picks the format.
	tmp := filepath.Join(dir, "."+uuid.NewString()+mediatypes.PreviewExt)
	if err := renderWithMagick(ctx, r.magickPath, src, tmp, r.quality, r.maxDimension); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move preview into place: %w", err)
	}
	return nil
}

func observeRender(backend string, start time.Time, err error) {
	metrics.PreviewRenderDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.PreviewRendersTotal.WithLabelValues(backend, status).Inc()
}

// writeAtomic writes data to a hidden temporary file next to dst and renames
// it into place.
func writeAtomic(dst string, data []byte) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write preview: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close preview: %w", err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("failed to set preview permissions: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move preview into place: %w", err)
	}
	return nil
}
