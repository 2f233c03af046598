package preview

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// sRGBProfile is the profile file handed to ImageMagick's -profile option.
const sRGBProfile = "sRGB.icc"

var errMagickUnconfigured = errors.New("ImageMagick path not configured")

// magickArgs builds the argument list for a profile-aware conversion that
// only ever shrinks the image.
func magickArgs(src, dst string, quality, maxDimension int) []string {
	size := strconv.Itoa(maxDimension)
	return []string{
		"convert",
		src,
		"-profile", sRGBProfile,
		"-resize", size + "x" + size + ">",
		"-sampling-factor", "4:2:0",
		"-quality", strconv.Itoa(quality),
		"-strip",
		"-interlace", "JPEG",
		dst,
	}
}

// renderWithMagick converts src to a JPEG at dst using the ImageMagick binary.
func renderWithMagick(ctx context.Context, magickPath, src, dst string, quality, maxDimension int) error {
	if magickPath == "" {
		return errMagickUnconfigured
	}

	cmd := exec.CommandContext(ctx, magickPath, magickArgs(src, dst, quality, maxDimension)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("magick convert failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
