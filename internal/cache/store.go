// Package cache owns the on-disk download cache: where each URL lives, when a
// cached copy can be reused, and how new downloads are staged and committed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stdErrors "errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"binstrap/internal/archive"
	"binstrap/internal/data"
	apperrors "binstrap/internal/errors"
	"binstrap/internal/integrity"
	"binstrap/internal/logger"
)

const keyHexLen = 16

// Status classifies a cache lookup.
type Status int

const (
	// Miss means nothing is cached for the URL.
	Miss Status = iota
	// Hit means the cached copy can be used as is.
	Hit
	// Stale means a copy exists but does not match the expected digest.
	Stale
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Lookup is the result of Store.Lookup.
type Lookup struct {
	Path   string
	Status Status
	// Ledger is set when the hit was confirmed from the ledger without rehashing.
	Ledger bool
}

// Store is a URL addressed file cache rooted at one directory.
type Store struct {
	root   string
	ledger data.Repository
	log    logger.Logger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates the cache rooted at root. ledger may be nil.
func NewStore(root string, ledger data.Repository, log logger.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "cache directory required", nil).
			WithModule("cache").
			WithOperation("NewStore")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.SystemError(apperrors.CodeCacheIO, "failed to resolve cache directory", err).
			WithModule("cache").
			WithOperation("NewStore").
			WithField("path", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperrors.SystemError(apperrors.CodeCacheIO, "failed to create cache directory", err).
			WithModule("cache").
			WithOperation("NewStore").
			WithField("path", abs)
	}
	if log == nil {
		log = logger.NewStandardLogger(logger.WithLevel(logger.LevelError))
	}

	return &Store{
		root:   abs,
		ledger: ledger,
		log:    log,
		locks:  make(map[string]*entryLock),
	}, nil
}

// Root returns the absolute cache directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns where rawURL is cached: <root>/<16 hex of sha256(url)>-<basename>.
func (s *Store) Path(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])[:keyHexLen]+"-"+baseName(rawURL))
}

// Lock serializes work on one URL's cache entry. The returned func releases it.
func (s *Store) Lock(rawURL string) func() {
	s.mu.Lock()
	lock := s.locks[rawURL]
	if lock == nil {
		lock = &entryLock{}
		s.locks[rawURL] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, rawURL)
		}
		s.mu.Unlock()
	}
}

// Lookup decides whether the cached copy of rawURL can be used. With no
// expected digest any existing copy is a hit. Otherwise the ledger is consulted
// first and the file is rehashed only when the ledger cannot vouch for it.
func (s *Store) Lookup(ctx context.Context, rawURL string, expected integrity.Digest) (Lookup, error) {
	p := s.Path(rawURL)
	info, err := os.Stat(p)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return Lookup{Path: p, Status: Miss}, nil
		}
		return Lookup{}, apperrors.SystemError(apperrors.CodeCacheIO, "failed to inspect cache entry", err).
			WithModule("cache").
			WithOperation("Lookup").
			WithField("path", p)
	}
	if !info.Mode().IsRegular() {
		return Lookup{Path: p, Status: Stale}, nil
	}

	if expected.IsZero() {
		return Lookup{Path: p, Status: Hit}, nil
	}

	if s.ledgerVouches(ctx, rawURL, p, info, expected) {
		return Lookup{Path: p, Status: Hit, Ledger: true}, nil
	}

	if err := integrity.VerifyDigest(p, expected); err != nil {
		if apperrors.KindOf(err) == apperrors.KindHashMismatch {
			s.log.DebugContext(ctx, "cached copy does not match expected digest", logger.String("path", p))
			return Lookup{Path: p, Status: Stale}, nil
		}
		return Lookup{}, err
	}

	s.record(ctx, rawURL, p, expected.String())
	return Lookup{Path: p, Status: Hit}, nil
}

func (s *Store) ledgerVouches(ctx context.Context, rawURL, p string, info os.FileInfo, expected integrity.Digest) bool {
	if s.ledger == nil {
		return false
	}
	row, err := s.ledger.LookupArtifact(ctx, rawURL)
	if err != nil {
		if !stdErrors.Is(err, data.ErrNotFound) {
			s.log.WarnContext(ctx, "ledger lookup failed", logger.Error(err))
		}
		return false
	}
	return row.Path == p &&
		row.Digest == expected.String() &&
		row.Size == info.Size() &&
		row.ModTime.Equal(info.ModTime())
}

// record stores the ledger row for the file at p. Ledger failures only warn.
func (s *Store) record(ctx context.Context, rawURL, p, digest string) {
	if s.ledger == nil {
		return
	}
	info, err := os.Stat(p)
	if err != nil {
		return
	}
	err = s.ledger.RecordArtifact(ctx, data.Artifact{
		URL:     rawURL,
		Path:    p,
		Digest:  digest,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to record artifact in ledger", logger.Error(err))
	}
}

// Remove deletes the cache entry for rawURL, its expansion directory and its
// ledger row.
func (s *Store) Remove(ctx context.Context, rawURL string) error {
	unlock := s.Lock(rawURL)
	defer unlock()

	p := s.Path(rawURL)
	for _, target := range []string{p, archive.ExpansionDir(p)} {
		if err := os.RemoveAll(target); err != nil {
			return apperrors.SystemError(apperrors.CodeCacheIO, "failed to remove cache entry", err).
				WithModule("cache").
				WithOperation("Remove").
				WithField("path", target)
		}
	}
	if s.ledger != nil {
		if err := s.ledger.ForgetArtifact(ctx, rawURL); err != nil {
			return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to forget artifact", err).
				WithModule("cache").
				WithOperation("Remove").
				WithField("url", rawURL)
		}
	}
	return nil
}

// Clean removes every cache entry under the root and every ledger artifact.
// Files that do not follow the entry naming, such as a ledger database kept
// in the same directory, are left alone. It returns the number of top-level
// entries removed.
func (s *Store) Clean(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, apperrors.SystemError(apperrors.CodeCacheIO, "failed to list cache directory", err).
			WithModule("cache").
			WithOperation("Clean").
			WithField("path", s.root)
	}

	removed := 0
	for _, entry := range entries {
		if !isEntryName(entry.Name()) {
			continue
		}
		target := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return removed, apperrors.SystemError(apperrors.CodeCacheIO, "failed to remove cache entry", err).
				WithModule("cache").
				WithOperation("Clean").
				WithField("path", target)
		}
		removed++
	}

	if s.ledger != nil {
		artifacts, err := s.ledger.ListArtifacts(ctx)
		if err != nil {
			return removed, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to list ledger artifacts", err).
				WithModule("cache").
				WithOperation("Clean")
		}
		for _, a := range artifacts {
			if err := s.ledger.ForgetArtifact(ctx, a.URL); err != nil {
				return removed, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to forget artifact", err).
					WithModule("cache").
					WithOperation("Clean").
					WithField("url", a.URL)
			}
		}
	}
	return removed, nil
}

// isEntryName matches cache entries, their expansions and staging files.
func isEntryName(name string) bool {
	name = strings.TrimPrefix(name, ".")
	if len(name) <= keyHexLen || name[keyHexLen] != '-' {
		return false
	}
	for _, r := range name[:keyHexLen] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func baseName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		base = "download"
	}
	return sanitize(base)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
