// Package archive turns cached downloads into the set of member files that
// exposures are resolved against.
package archive

// Artifact is either a single downloaded file or the members of an expanded
// archive. Construct it with Single or Many.
type Artifact struct {
	root    string
	members []string
	many    bool
}

// Single wraps a plain downloaded file.
func Single(path string) Artifact {
	return Artifact{root: path, members: []string{path}}
}

// Many wraps the member files of an archive expanded under root. Members are
// kept in the order given.
func Many(root string, members []string) Artifact {
	return Artifact{root: root, members: append([]string(nil), members...), many: true}
}

// IsExpanded reports whether the artifact came from an archive.
func (a Artifact) IsExpanded() bool {
	return a.many
}

// Root is the downloaded file for Single artifacts and the expansion
// directory for expanded ones.
func (a Artifact) Root() string {
	return a.root
}

// Members returns a copy of the member paths.
func (a Artifact) Members() []string {
	return append([]string(nil), a.members...)
}
