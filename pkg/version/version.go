// Package version carries build metadata, overridden at link time.
package version

var (
	// Version is the release version.
	Version = "dev"

	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"
)
