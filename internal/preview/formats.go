package preview

import (
	"fmt"

	"preview-watcher/internal/mediatypes"
)

// DecodeStrategy selects how a source file is turned into a raster.
type DecodeStrategy int

const (
	StrategyGeneric DecodeStrategy = iota
	StrategyPSB
	StrategyComplexTIFF
	StrategySimpleTIFF
)

func (s DecodeStrategy) String() string {
	switch s {
	case StrategyPSB:
		return "psb"
	case StrategyComplexTIFF:
		return "complex_tiff"
	case StrategySimpleTIFF:
		return "simple_tiff"
	case StrategyGeneric:
		return "generic"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Classify returns the decode strategy for path. Only TIFF files are opened;
// every other decision is made from the lowercased extension.
func Classify(path string) (DecodeStrategy, error) {
	ext := mediatypes.Ext(path)
	switch {
	case ext == ".psb":
		return StrategyPSB, nil
	case mediatypes.GetKind(ext) == mediatypes.KindTIFF:
		complex, err := HasICCProfile(path)
		if err != nil {
			return StrategySimpleTIFF, err
		}
		if complex {
			return StrategyComplexTIFF, nil
		}
		return StrategySimpleTIFF, nil
	default:
		return StrategyGeneric, nil
	}
}
