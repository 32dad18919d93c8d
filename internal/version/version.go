package version

import "fmt"

// Version and Commit are injected at build time through -ldflags.
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full returns the version line printed by the CLI.
func Full() string {
	return fmt.Sprintf("binstrap %s (%s)", Version, Commit)
}
