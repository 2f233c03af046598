package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"preview-watcher/internal/logging"
)

const rule = "============================================================"

func section(title string) {
	logging.Info("")
	logging.Info("%s", rule)
	logging.Info(" %s", title)
	logging.Info("%s", rule)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func printBanner() {
	fmt.Println(rule)
	fmt.Println(" preview-watcher")
	fmt.Println(" JPEG previews for a watched directory tree")
	fmt.Println(rule)
	info := GetBuildInfo()
	logging.Info("  Version:    %s (%s)", info.Version, info.Commit)
	logging.Info("  Built:      %s", info.BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC3339))
}

func logSystemInfo() {
	section("SYSTEM")
	logging.Info("  Go:          %s %s", runtime.Version(), GetBuildInfo().Platform)
	logging.Info("  CPUs:        %d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if host, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:    %s", host)
	}
	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  Working dir: %s", wd)
	}
}

// LogDatabaseInit reports the opened store.
func LogDatabaseInit(dialect string, took time.Duration) {
	section("DATABASE")
	logging.Info("  Dialect: %s", dialect)
	logging.Info("  [OK] Schema ready after %v", took.Round(time.Millisecond))
}

// LogPreviewInit reports which rendering backends are usable.
func LogPreviewInit(vipsAvailable bool, magickPath string) {
	section("PREVIEW RENDERER")
	if vipsAvailable {
		logging.Info("  libvips:     available (progressive JPEG, ICC to sRGB)")
	} else {
		logging.Warn("  libvips:     unavailable, previews are baseline JPEG")
	}

	if magickPath == "" {
		logging.Info("  ImageMagick: not configured")
		return
	}
	version, err := magickVersion(magickPath)
	if err != nil {
		logging.Warn("  ImageMagick: %v", err)
		logging.Warn("  Complex TIFF files fall back to libvips and the plain decoder")
		return
	}
	logging.Info("  ImageMagick: %s", version)
}

// magickVersion runs "<path> -version" and returns its first line.
func magickVersion(path string) (string, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%s not found", path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, resolved, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version failed: %w", resolved, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return valueOr(strings.TrimSpace(first), resolved), nil
}

// LogWatcherInit reports the watcher settings before it starts.
func LogWatcherInit(mode string, interval time.Duration, resync bool, workers int) {
	section("WATCHER")
	if mode == WatchModePoll && interval > 0 {
		logging.Info("  Mode:    %s every %v", mode, interval)
	} else {
		logging.Info("  Mode:    %s", mode)
	}
	logging.Info("  Workers: %d", workers)
	if resync {
		logging.Info("  Resync:  every existing file is processed")
	} else {
		logging.Info("  Resync:  off, existing files form the baseline")
	}
}

// LogWatcherStarted marks the watcher as running.
func LogWatcherStarted() {
	logging.Info("  [OK] Watching")
}

// LogJanitorInit reports the bundle janitor schedule.
func LogJanitorInit(schedule string, days int, enabled bool) {
	section("ZIP JANITOR")
	if !enabled {
		logging.Warn("  Not running: zip directory unavailable")
		return
	}
	logging.Info("  Schedule:  %s (plus once at startup)", schedule)
	logging.Info("  Retention: %d days", days)
}

// ServerConfig is the summary printed once the listeners are up.
type ServerConfig struct {
	Host            string
	Port            string
	SocketPort      string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted prints the listener summary.
func LogServerStarted(config ServerConfig) {
	section("READY")
	logging.Info("  Startup took %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  HTTP:      http://%s:%s", config.Host, config.Port)
	logging.Info("  WebSocket: ws://%s:%s/ws/{clientID}", config.Host, valueOr(config.SocketPort, config.Port))
	if config.MetricsEnabled {
		logging.Info("  Metrics:   http://%s:%s/metrics", config.Host, config.MetricsPort)
	} else {
		logging.Info("  Metrics:   off")
	}
	logging.Info("%s", rule)
}

// LogShutdownInitiated opens the shutdown section.
func LogShutdownInitiated(reason string) {
	section("SHUTDOWN (" + reason + ")")
}

// LogShutdownStep logs a step before it runs.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete closes the shutdown section.
func LogShutdownComplete() {
	logging.Info("  [OK] Stopped")
}

// LogFatal logs and exits with status 1.
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}
