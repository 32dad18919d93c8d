// Package expose resolves which cached member backs each logical name and
// installs it into the output directory.
package expose

import (
	"path/filepath"
	"strings"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/platform"
)

// ShortcutExt is appended to extensionless names when shortcuts are used.
const ShortcutExt = ".lnk"

// Rule asks for the member ending with Suffix to be exposed as Name.
type Rule struct {
	Name   string
	Suffix string
}

// Target is a planned exposure.
type Target struct {
	Name        string
	Source      string
	Destination string
}

// Planner resolves rules against artifact members.
type Planner struct {
	Platform  platform.Platform
	OutputDir string
}

// Plan picks the shortest member whose path ends with rule.Suffix. Equal
// lengths are broken lexically. An empty suffix matches every member.
// Names must stay inside the output directory.
func (p Planner) Plan(members []string, rule Rule, useShortcut bool) (Target, error) {
	if !filepath.IsLocal(rule.Name) {
		return Target{}, apperrors.ExposureError(apperrors.CodeLinkInstall, "exposure name escapes output directory", nil).
			WithModule("expose").
			WithOperation("Plan").
			WithField("exposure", rule.Name)
	}
	suffix := filepath.ToSlash(rule.Suffix)

	var source string
	for _, member := range members {
		if !strings.HasSuffix(filepath.ToSlash(member), suffix) {
			continue
		}
		if source == "" || len(member) < len(source) || (len(member) == len(source) && member < source) {
			source = member
		}
	}

	if source == "" {
		return Target{}, apperrors.ExposureError(apperrors.CodeNoMatch, "no member matches exposure suffix", nil).
			WithModule("expose").
			WithOperation("Plan").
			WithField("exposure", rule.Name).
			WithField("suffix", rule.Suffix).
			WithField("candidates", len(members))
	}

	return Target{
		Name:        rule.Name,
		Source:      source,
		Destination: filepath.Join(p.OutputDir, p.destinationName(rule.Name, source, useShortcut)),
	}, nil
}

func (p Planner) destinationName(name, source string, useShortcut bool) string {
	if !p.Platform.RequiresExtension || filepath.Ext(name) != "" {
		return name
	}
	if useShortcut && p.Platform.SupportsShortcuts {
		return name + ShortcutExt
	}
	return name + filepath.Ext(source)
}
