package preview

import (
	"bufio"
	"errors"
	"fmt"
	"image"

	"github.com/oov/psd"

	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
)

var errNoComposite = errors.New("document has no merged composite image")

// decodePSB returns the flattened composite stored in a PSD/PSB document.
// Layer pixel data is skipped; only the merged image is read.
func decodePSB(path string) (image.Image, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	doc, _, err := psd.Decode(bufio.NewReaderSize(f, 1<<20), &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, fmt.Errorf("failed to decode layered document: %w", err)
	}
	if doc.Picker == nil {
		return nil, errNoComposite
	}

	b := doc.Picker.Bounds()
	logging.Debug("Flattened %s: %dx%d, %d layers", path, b.Dx(), b.Dy(), len(doc.Layer))
	return doc.Picker, nil
}
