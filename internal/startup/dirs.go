package startup

import (
	"fmt"
	"os"

	"preview-watcher/internal/logging"
)

// prepareDir creates dir if needed and proves it is writable by creating and
// removing a probe file.
func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		logging.Debug("    created %s", dir)
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove probe file %s: %v", name, err)
	}
	return nil
}

// prepareOptionalDir is prepareDir for features that can run disabled.
func prepareOptionalDir(dir, feature string) bool {
	if err := prepareDir(dir); err != nil {
		logging.Warn("  %s disabled: %v", feature, err)
		return false
	}
	logging.Info("  [OK] %s directory: %s", feature, dir)
	return true
}

func onOff(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
