package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind groups source files by how they are decoded.
type Kind string

const (
	// KindRaster is a flat raster image format.
	KindRaster Kind = "raster"
	// KindTIFF is a TIFF image.
	KindTIFF Kind = "tiff"
	// KindLayered is a layered Photoshop document.
	KindLayered Kind = "layered"
	// KindOther is any unrecognized extension.
	KindOther Kind = "other"
)

// PreviewExt is the extension of every generated preview.
const PreviewExt = ".jpeg"

// RasterExtensions lists the flat formats the generic decoder handles natively.
var RasterExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".heic": true,
	".heif": true,
	".avif": true,
}

// TIFFExtensions lists TIFF extensions.
var TIFFExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
}

// LayeredExtensions lists Photoshop document extensions.
var LayeredExtensions = map[string]bool{
	".psd": true,
	".psb": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".psd":  "image/vnd.adobe.photoshop",
	".psb":  "image/vnd.adobe.photoshop",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
}

// Ext returns the lowercased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// GetKind returns the Kind for a lowercased extension with its leading dot.
func GetKind(ext string) Kind {
	switch {
	case TIFFExtensions[ext]:
		return KindTIFF
	case LayeredExtensions[ext]:
		return KindLayered
	case RasterExtensions[ext]:
		return KindRaster
	default:
		return KindOther
	}
}

// GetMimeType returns the MIME type for a lowercased extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsHidden reports whether a single path element is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
