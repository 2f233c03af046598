package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"preview-watcher/internal/logging"
)

// Encoder writes a raster as JPEG bytes.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
	Name() string
}

// NewEncoder returns the libvips encoder when libvips is running, otherwise
// the image/jpeg encoder.
func NewEncoder() Encoder {
	if IsVipsAvailable() {
		return vipsEncoder{}
	}
	return &stdEncoder{}
}

// vipsEncoder produces progressive, Huffman-optimized JPEGs.
type vipsEncoder struct{}

func (vipsEncoder) Name() string { return "vips" }

func (vipsEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to stage raster for vips: %w", err)
	}

	ref, err := vips.LoadImageFromBuffer(buf.Bytes(), vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load raster: %w", err)
	}
	defer ref.Close()

	out, _, err := ref.ExportJpeg(jpegParams(quality))
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return out, nil
}

// stdEncoder writes baseline JPEG. image/jpeg has no progressive mode.
type stdEncoder struct {
	warnOnce sync.Once
}

func (*stdEncoder) Name() string { return "stdlib" }

func (e *stdEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	e.warnOnce.Do(func() {
		logging.Warn("libvips unavailable: writing baseline (non-progressive) JPEG previews")
	})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
