package config

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"binstrap/internal/bootstrap"
	apperrors "binstrap/internal/errors"
	"binstrap/internal/platform"
)

// Manifest maps platform keys to the assets a bootstrap run installs.
type Manifest struct {
	Platforms map[string]PlatformFiles `yaml:"platforms"`
}

// PlatformFiles lists the assets of one platform key.
type PlatformFiles struct {
	Files []FileEntry `yaml:"files"`
}

// FileEntry is the manifest form of one asset descriptor.
type FileEntry struct {
	URL      string            `yaml:"url"`
	Hash     string            `yaml:"hash,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Expose   map[string]string `yaml:"expose,omitempty"`
	Shortcut bool              `yaml:"lnk,omitempty"`
}

// Descriptor converts the entry into a pipeline descriptor.
func (f FileEntry) Descriptor() bootstrap.Descriptor {
	return bootstrap.Descriptor{
		URL:          strings.TrimSpace(f.URL),
		ExpectedHash: strings.TrimSpace(f.Hash),
		Headers:      f.Headers,
		Exposures:    f.Expose,
		UseShortcut:  f.Shortcut,
	}
}

// LoadManifest reads a manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to read manifest", err).
			WithModule("config").
			WithOperation("LoadManifest").
			WithField("path", path)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, apperrors.Annotate(err, "config", "LoadManifest").WithField("path", path)
	}
	return m, nil
}

// ParseManifest decodes manifest data from bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if len(strings.TrimSpace(string(data))) == 0 {
		return &m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to parse manifest", errors.Wrap(err, "yaml")).
			WithModule("config").
			WithOperation("ParseManifest")
	}
	return &m, nil
}

// LoadManifests loads and merges every manifest in order.
func LoadManifests(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "no manifest configured", nil).
			WithModule("config").
			WithOperation("LoadManifests")
	}
	manifests := make([]*Manifest, 0, len(paths))
	for _, p := range paths {
		m, err := LoadManifest(p)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	merged := MergeManifests(manifests...)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeManifests merges manifests per platform key. An entry whose URL was
// already seen replaces the earlier entry in place.
func MergeManifests(ms ...*Manifest) *Manifest {
	result := &Manifest{Platforms: make(map[string]PlatformFiles)}
	index := make(map[string]map[string]int)

	for _, m := range ms {
		if m == nil {
			continue
		}
		for key, pf := range m.Platforms {
			key = normalizeKey(key)
			seen, ok := index[key]
			if !ok {
				seen = make(map[string]int)
				index[key] = seen
			}
			merged := result.Platforms[key]
			for _, f := range pf.Files {
				u := strings.TrimSpace(f.URL)
				if idx, dup := seen[u]; dup && u != "" {
					merged.Files[idx] = f
					continue
				}
				seen[u] = len(merged.Files)
				merged.Files = append(merged.Files, f)
			}
			result.Platforms[key] = merged
		}
	}
	return result
}

// Validate checks that every entry has a usable URL, that no URL appears
// twice per platform key, and that exposure names are unique per key.
func (m *Manifest) Validate() error {
	if m == nil {
		return nil
	}

	keys := make([]string, 0, len(m.Platforms))
	for key := range m.Platforms {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		urls := make(map[string]struct{})
		names := make(map[string]string)
		for _, f := range m.Platforms[key].Files {
			raw := strings.TrimSpace(f.URL)
			if raw == "" {
				return invalidEntry("url is required", key, raw)
			}
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" {
				return invalidEntry("url must be absolute", key, raw)
			}
			if _, dup := urls[raw]; dup {
				return invalidEntry("duplicate url", key, raw)
			}
			urls[raw] = struct{}{}

			for name, suffix := range f.Expose {
				if strings.TrimSpace(name) == "" {
					return invalidEntry("exposure name is required", key, raw)
				}
				if !filepath.IsLocal(name) {
					return invalidEntry("exposure name must stay inside the output directory", key, raw).WithField("exposure", name)
				}
				if strings.TrimSpace(suffix) == "" {
					return invalidEntry("exposure suffix is required", key, raw).WithField("exposure", name)
				}
				if owner, dup := names[name]; dup {
					return invalidEntry("duplicate exposure name", key, raw).
						WithField("exposure", name).
						WithField("previous_url", owner)
				}
				names[name] = raw
			}
		}
	}
	return nil
}

// Files returns the entries of the most specific key present for p.
func (m *Manifest) Files(p platform.Platform) []FileEntry {
	if m == nil {
		return nil
	}
	for _, key := range p.Keys() {
		if pf, ok := m.Platforms[key]; ok {
			return pf.Files
		}
	}
	return nil
}

// Descriptors returns the pipeline descriptors for p.
func (m *Manifest) Descriptors(p platform.Platform) []bootstrap.Descriptor {
	files := m.Files(p)
	descs := make([]bootstrap.Descriptor, 0, len(files))
	for _, f := range files {
		descs = append(descs, f.Descriptor())
	}
	return descs
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func invalidEntry(msg, key, rawURL string) *apperrors.AppError {
	return apperrors.ValidationError(apperrors.CodeValidationGeneric, msg, nil).
		WithModule("config").
		WithOperation("Validate").
		WithField("platform", key).
		WithField("url", rawURL)
}
