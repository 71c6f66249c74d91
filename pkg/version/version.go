// Package version holds build information injected via ldflags.
package version

import "fmt"

// Build information. Example: go build -ldflags "-X agentrunner/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // must be package-level vars for ldflags injection
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information for -version output.
func String() string {
	return fmt.Sprintf("agentd %s\n  commit: %s\n  built:  %s", Version, Commit, Date)
}
