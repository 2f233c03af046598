package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"preview-watcher/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

// vipsState tracks the process-wide libvips runtime.
var vipsState struct {
	sync.Mutex
	running bool
}

var errVipsUnavailable = errors.New("libvips not available")

// InitVips starts libvips once and forwards its messages to the logging
// package, filtered by the current level.
func InitVips() error {
	vipsState.Lock()
	defer vipsState.Unlock()
	if vipsState.running {
		return nil
	}

	vips.LoggingSettings(forwardVipsLog, vipsThreshold(logging.GetLevel()))
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 << 20,
		MaxCacheSize:     100,
	})
	vipsState.running = true
	logging.Info("libvips %s started", vips.Version)
	return nil
}

// vipsThreshold picks the lowest libvips level worth forwarding.
func vipsThreshold(level logging.LogLevel) vips.LogLevel {
	switch {
	case level <= logging.LevelDebug:
		return vips.LogLevelInfo
	case level >= logging.LevelWarn:
		return vips.LogLevelError
	}
	return vips.LogLevelWarning
}

func forwardVipsLog(domain string, l vips.LogLevel, msg string) {
	switch l {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// ShutdownVips stops libvips if InitVips started it.
func ShutdownVips() {
	vipsState.Lock()
	defer vipsState.Unlock()
	if !vipsState.running {
		return
	}
	vips.Shutdown()
	vipsState.running = false
	logging.Info("libvips stopped")
}

// IsVipsAvailable reports whether InitVips has started libvips and it has
// not been shut down since.
func IsVipsAvailable() bool {
	vipsState.Lock()
	defer vipsState.Unlock()
	return vipsState.running
}

// openVips loads path through libvips.
func openVips(path string) (*vips.ImageRef, error) {
	if !IsVipsAvailable() {
		return nil, errVipsUnavailable
	}
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips load %s: %w", filepath.Base(path), err)
	}
	return ref, nil
}

// loadWithVips decodes formats the Go decoders cannot read.
func loadWithVips(path string) (image.Image, error) {
	ref, err := openVips(path)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	logging.Debug("Vips loaded %s: %dx%d", filepath.Base(path), ref.Width(), ref.Height())

	if err := ref.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, fmt.Errorf("vips to sRGB: %w", err)
	}

	// Lossless hand-off to the Go decoders.
	raw, _, err := ref.ExportPng(&vips.PngExportParams{Compression: 1})
	if err != nil {
		return nil, fmt.Errorf("vips png hand-off: %w", err)
	}
	return imaging.Decode(bytes.NewReader(raw))
}

// renderICCWithVips converts a profiled TIFF to sRGB, bounds its longest edge
// and exports a progressive JPEG.
func renderICCWithVips(path string, quality, maxDimension int) ([]byte, error) {
	ref, err := openVips(path)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	if err := ref.TransformICCProfile(vips.SRGBIEC6196621ICCProfilePath); err != nil {
		return nil, fmt.Errorf("vips icc to sRGB: %w", err)
	}

	if scale := scaleFactor(ref.Width(), ref.Height(), maxDimension); scale < 1 {
		if err := ref.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, fmt.Errorf("vips resize: %w", err)
		}
	}

	if ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, fmt.Errorf("vips flatten: %w", err)
		}
	}

	buf, _, err := ref.ExportJpeg(jpegParams(quality))
	if err != nil {
		return nil, fmt.Errorf("vips jpeg export: %w", err)
	}
	return buf, nil
}

func jpegParams(quality int) *vips.JpegExportParams {
	params := vips.NewJpegExportParams()
	params.Quality = quality
	params.Interlace = true
	params.OptimizeCoding = true
	params.StripMetadata = true
	params.SubsampleMode = vips.VipsForeignSubsampleOn
	return params
}
