// Package version reports the build of the livepreview binary. The values are
// stamped with -ldflags at release time and fall back to the VCS settings Go
// records in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty"`
}

// Set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetBuildInfo returns the build information of the running binary.
func GetBuildInfo() *BuildInfo {
	settings := vcsSettings()

	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     settings["vcs.modified"] == "true",
	}
}

// GetVersion returns the application version
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	if rev := vcsSettings()["vcs.revision"]; len(rev) >= 7 {
		return "dev-" + rev[:7]
	}

	return "dev"
}

// GetGitCommit returns the git commit hash
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := vcsSettings()["vcs.revision"]; rev != "" {
		return rev
	}

	return "unknown"
}

// IsRelease reports whether this is a tagged build.
func IsRelease() bool {
	v := GetVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

// UserAgent is sent with every request the client makes to the preview
// server.
func UserAgent() string {
	return "livepreview/" + GetVersion()
}

// String is the one-line form printed by `livepreview version`.
func (b *BuildInfo) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "livepreview %s", b.Version)
	if len(b.GitCommit) >= 7 {
		fmt.Fprintf(&s, " (%s", b.GitCommit[:7])
		if b.Dirty {
			s.WriteString(", dirty")
		}
		s.WriteString(")")
	}
	fmt.Fprintf(&s, " %s %s", b.GoVersion, b.Platform)
	if !b.BuildTime.IsZero() {
		fmt.Fprintf(&s, " built %s", b.BuildTime.Format(time.RFC3339))
	}

	return s.String()
}

func vcsSettings() map[string]string {
	out := make(map[string]string)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			out[setting.Key] = setting.Value
		}
	}
	return out
}

// parseTime accepts RFC 3339 with or without a zone; anything else is the
// zero time.
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
