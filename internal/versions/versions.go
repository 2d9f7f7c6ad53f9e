// Package versions exposes build version information.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via ldflags.
var (
	// Version is the release version.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the binary's version information, filling the
// commit from embedded build info when ldflags did not set it.
func GetVersionInfo() VersionInfo {
	commit := Commit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}
	return VersionInfo{
		Version:   Version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
