// Package mediatypes holds the extension tables shared by the preview
// decoder, the file server and the bundle builder.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
// # File Kinds
//
//	mediatypes.KindRaster   // flat raster formats (jpg, png, gif, ...)
//	mediatypes.KindTIFF     // tif/tiff, further split by ICC profile presence
//	mediatypes.KindLayered  // psd/psb documents
//	mediatypes.KindOther    // anything else; still handed to the generic decoder
//
// # Extension Detection
//
// Extensions are lowercased and carry the leading dot:
//
//	ext := mediatypes.Ext(filename) // ".tif"
//	switch mediatypes.GetKind(ext) {
//	case mediatypes.KindTIFF:
//	    // inspect for an embedded profile
//	}
//
// # MIME Types
//
// GetMimeType returns the Content-Type used when serving originals and
// previews, falling back to application/octet-stream.
package mediatypes
