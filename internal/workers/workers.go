package workers

import (
	"os"
	"runtime"
	"strconv"

	"preview-watcher/internal/logging"
)

// OverrideEnv names the environment variable that pins the pipeline worker count.
const OverrideEnv = "PREVIEW_WORKERS"

// Count returns a worker count for a task profile, scaled from GOMAXPROCS
// (which follows container CPU limits). Typical multipliers are 1.0 for
// CPU-bound work, 2.0 for I/O-bound work and 1.5 for mixed work. A positive
// limit caps the result. PREVIEW_WORKERS overrides the computation.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		count, err := strconv.Atoi(override)
		if err == nil && count > 0 {
			return capAt(count, limit)
		}
		logging.Warn("Ignoring invalid %s=%q", OverrideEnv, override)
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capAt(workers, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU). Preview
// generation reads from disk, decodes, resizes and writes, so the pipeline
// pool uses this profile.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
