// Package platform describes the host capabilities that change how assets are
// selected and exposed.
package platform

import (
	"runtime"
	"strings"
)

// Platform is chosen once at startup and handed to every component that needs
// to branch on the host.
type Platform struct {
	// Name is the manifest key of the platform, normally runtime.GOOS.
	Name string
	// RequiresExtension is set where launchers rely on file extensions, so
	// exposures without one get a suffix.
	RequiresExtension bool
	// SupportsShortcuts is set where native .lnk shortcut files are the
	// preferred indirection.
	SupportsShortcuts bool
}

// Current returns the platform of the running process.
func Current() Platform {
	return ForName(runtime.GOOS)
}

// ForName returns the platform description for a GOOS style name.
func ForName(name string) Platform {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = runtime.GOOS
	}

	p := Platform{Name: name}
	if name == "windows" {
		p.RequiresExtension = true
		p.SupportsShortcuts = true
	}
	return p
}

// Keys returns the manifest keys to try for this platform, most specific first.
func (p Platform) Keys() []string {
	return []string{p.Name, "all", "default"}
}
