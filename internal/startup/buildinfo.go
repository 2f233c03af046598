package startup

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X preview-watcher/internal/startup.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo is reported by /version and the version command.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the linker-provided values. When the commit was not
// injected, the VCS revision recorded by the go tool is used instead.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "unknown" {
		if rev, when := vcsRevision(); rev != "" {
			info.Commit = rev
			if info.BuildTime == "unknown" && when != "" {
				info.BuildTime = when
			}
		}
	}
	return info
}

func vcsRevision() (revision, when string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			when = s.Value
		}
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return revision, when
}
