// Package preview turns source images into bounded, quality-controlled JPEG
// previews.
//
// Classify picks a DecodeStrategy from the file extension (and, for TIFF,
// the presence of an embedded ICC profile). Decoder produces a canonical
// Raster, and Renderer resizes and encodes it to the output path.
//
// Complex TIFF files skip the in-process raster entirely: the Renderer hands
// them to a profile-aware backend (libvips, then ImageMagick) and only falls
// back to a plain TIFF decode when neither is available.
//
// libvips must be initialized with InitVips before its backends are used.
// Without it, previews are encoded with image/jpeg as baseline JPEG.
package preview
