// Package version provides build version information.
// Values are set at build time via ldflags:
// go build -ldflags "-X github.com/Rorqualx/proxydl/pkg/version.Version=1.0.0 -X github.com/Rorqualx/proxydl/pkg/version.Commit=abc1234"
package version

import "runtime"

var (
	// Version is the application version.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = ""
)

// Full returns the version with the commit appended when known.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}

// GoVersion returns the Go runtime version.
func GoVersion() string {
	return runtime.Version()
}
