package filesystem

import (
	"path/filepath"
	"slices"
	"strings"
)

const unknownVolume = "unknown"

// VolumeResolver labels paths with the configured root that contains them.
// The deepest matching root wins, so a preview tree nested inside the watch
// tree is reported as "previews".
type VolumeResolver struct {
	roots []volumeRoot
}

type volumeRoot struct {
	prefix string // absolute, slash terminated
	label  string
}

// NewVolumeResolver builds a resolver from label to directory. Empty
// directories are ignored.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	vr := &VolumeResolver{}
	for label, dir := range volumes {
		if dir == "" {
			continue
		}
		vr.roots = append(vr.roots, volumeRoot{prefix: withSlash(absOr(dir)), label: label})
	}
	slices.SortFunc(vr.roots, func(a, b volumeRoot) int {
		return len(b.prefix) - len(a.prefix)
	})
	return vr
}

// Resolve returns the label of the root containing path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return unknownVolume
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return unknownVolume
	}
	abs = withSlash(abs)
	for _, root := range vr.roots {
		if strings.HasPrefix(abs, root.prefix) {
			return root.label
		}
	}
	return unknownVolume
}

func absOr(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func withSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver installs the resolver used when a RetryConfig has
// none of its own.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}
