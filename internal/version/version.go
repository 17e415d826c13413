// Package version carries build identity shared by the udl binaries.
package version

import "fmt"

var (
	// Version is the current release (overridden by ldflags at build time).
	Version = "0.3.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag).
	Commit = ""
)

// String renders the full version line.
func String() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s: %s)", Version, Build, shortCommit(Commit))
	}
	return fmt.Sprintf("%s (%s)", Version, Build)
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
