// Package bootstrap runs the fetch, verify, expand and expose pipeline for a
// list of descriptors on a fixed worker pool.
package bootstrap

import (
	"sort"

	"binstrap/internal/expose"
)

// Descriptor declares one remote file and how its content is exposed.
type Descriptor struct {
	URL          string
	ExpectedHash string
	Headers      map[string]string
	// Exposures maps logical names to member path suffixes.
	Exposures   map[string]string
	UseShortcut bool
}

// Rules returns the exposure rules ordered by logical name.
func (d Descriptor) Rules() []expose.Rule {
	names := make([]string, 0, len(d.Exposures))
	for name := range d.Exposures {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]expose.Rule, 0, len(names))
	for _, name := range names {
		rules = append(rules, expose.Rule{Name: name, Suffix: d.Exposures[name]})
	}
	return rules
}
