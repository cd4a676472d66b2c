// Package version reports the build of imd-cfg.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/rackops/imdcfg/internal/version.Version=v1.2.3 \
//	                   -X github.com/rackops/imdcfg/internal/version.Commit=abc123"
//
// Unset values are filled from the VCS stamp of the build, then from a
// dev placeholder.
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			fromBuildSettings(buildSettings(info))
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func buildSettings(info *debug.BuildInfo) map[string]string {
	out := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		out[s.Key] = s.Value
	}
	return out
}

// fromBuildSettings fills Version and Commit from the vcs.* build settings.
func fromBuildSettings(settings map[string]string) {
	if rev := settings["vcs.revision"]; Commit == "" && rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		if settings["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Commit = rev
	}
	if Version == "" {
		if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Full returns the version with its commit, as printed by 'imd-cfg version'.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
