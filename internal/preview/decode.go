package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"

	// Formats handled by image.Decode through imaging.Open.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "github.com/oov/psd" // registers "8BPS" with image.Decode
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ColorMode describes the pixel layout of a decoded raster.
type ColorMode string

const (
	ModeRGB       ColorMode = "RGB"
	ModeRGBA      ColorMode = "RGBA"
	ModeCMYK      ColorMode = "CMYK"
	ModeGray      ColorMode = "L"
	ModeGrayAlpha ColorMode = "LA"
	ModePaletted  ColorMode = "P"
)

// Raster is a decoded source image. For StrategyComplexTIFF, Image is nil and
// the Renderer reads Source directly through a profile-aware backend.
type Raster struct {
	Image    image.Image
	Mode     ColorMode
	Strategy DecodeStrategy
	Source   string
}

// DecodeError reports an unsupported or corrupt source file.
type DecodeError struct {
	Path     string
	Strategy DecodeStrategy
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Path, e.Strategy, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns source files into canonical rasters.
type Decoder struct {
	// vipsFallback loads formats the Go decoders do not know (HEIC, AVIF).
	vipsFallback func(path string) (image.Image, error)
}

// NewDecoder returns a Decoder. When libvips is initialized it is used as a
// fallback for the generic strategy.
func NewDecoder() *Decoder {
	d := &Decoder{}
	if IsVipsAvailable() {
		d.vipsFallback = loadWithVips
	}
	return d
}

// Decode classifies path and decodes it to a raster.
func (d *Decoder) Decode(ctx context.Context, path string) (*Raster, error) {
	strategy, err := Classify(path)
	if err != nil {
		logging.Info("ICC profile not readable for %s, treating as simple TIFF: %v", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Path: path, Strategy: strategy, Err: err}
	}

	start := time.Now()
	raster, err := d.decode(path, strategy)
	metrics.PreviewDecodeDuration.WithLabelValues(strategy.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &DecodeError{Path: path, Strategy: strategy, Err: err}
	}
	return raster, nil
}

func (d *Decoder) decode(path string, strategy DecodeStrategy) (*Raster, error) {
	switch strategy {
	case StrategyComplexTIFF:
		logging.Info("Complex TIFF was detected: %s", path)
		if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
			return nil, err
		}
		return &Raster{Mode: ModeCMYK, Strategy: strategy, Source: path}, nil

	case StrategySimpleTIFF:
		logging.Debug("Converting simple TIFF to image: %s", path)
		img, err := decodeSimpleTIFF(path)
		if err != nil {
			return nil, err
		}
		return &Raster{Image: img, Mode: ModeRGB, Strategy: strategy, Source: path}, nil

	case StrategyPSB:
		img, err := decodePSB(path)
		if err != nil {
			return nil, err
		}
		return normalize(img, strategy, path), nil

	case StrategyGeneric:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil && d.vipsFallback != nil {
			logging.Debug("Go decoders rejected %s (%v), trying libvips", path, err)
			img, err = d.vipsFallback(path)
		}
		if err != nil {
			return nil, err
		}
		return normalize(img, strategy, path), nil

	default:
		return nil, fmt.Errorf("unknown decode strategy %d", int(strategy))
	}
}

func decodeSimpleTIFF(path string) (image.Image, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TIFF: %w", err)
	}
	return toRGB(img), nil
}

// normalize converts CMYK, alpha and paletted rasters to plain RGB.
func normalize(img image.Image, strategy DecodeStrategy, path string) *Raster {
	mode := colorMode(img)
	switch mode {
	case ModeCMYK, ModeRGBA, ModeGrayAlpha, ModePaletted:
		logging.Debug("Converting %s from %s to RGB", path, mode)
		img = toRGB(img)
		mode = ModeRGB
	}
	return &Raster{Image: img, Mode: mode, Strategy: strategy, Source: path}
}

func colorMode(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.CMYK:
		return ModeCMYK
	case *image.Paletted:
		return ModePaletted
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.YCbCr:
		return ModeRGB
	case *image.NRGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.RGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.NRGBA64:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.RGBA64:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	}

	switch img.ColorModel() {
	case color.CMYKModel:
		return ModeCMYK
	case color.GrayModel, color.Gray16Model:
		return ModeGray
	case color.AlphaModel, color.Alpha16Model:
		return ModeGrayAlpha
	}
	return ModeRGBA
}

// toRGB keeps the first three channels of img at 8 bits each and drops alpha
// without compositing. 16-bit samples are scaled, not truncated.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.CMYK:
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			in := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
			out := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
			for i := 0; i < len(in); i += 4 {
				out[i], out[i+1], out[i+2], out[i+3] = in[i], in[i+1], in[i+2], 0xff
			}
		}
		return dst
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			in := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*8]
			out := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
			for i, j := 0, 0; i < len(in); i, j = i+8, j+4 {
				// High byte of each big-endian 16-bit sample.
				out[j], out[j+1], out[j+2], out[j+3] = in[i], in[i+2], in[i+4], 0xff
			}
		}
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * dst.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			i := row + (x-b.Min.X)*4
			dst.Pix[i+0] = uint8(c.R >> 8)
			dst.Pix[i+1] = uint8(c.G >> 8)
			dst.Pix[i+2] = uint8(c.B >> 8)
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

