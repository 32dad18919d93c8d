package cache

import (
	"context"
	"os"
	"path/filepath"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/integrity"
)

// Staged is an in-progress download for one cache entry. Exactly one of
// Commit or Discard should be called; Discard after Commit is a no-op.
type Staged struct {
	*os.File

	store *Store
	url   string
	final string
	done  bool
}

// Stage creates a temp file next to rawURL's cache entry.
func (s *Store) Stage(rawURL string) (*Staged, error) {
	final := s.Path(rawURL)
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".part-*")
	if err != nil {
		return nil, apperrors.SystemError(apperrors.CodeCacheIO, "failed to create staging file", err).
			WithModule("cache").
			WithOperation("Stage").
			WithField("path", final)
	}
	return &Staged{File: f, store: s, url: rawURL, final: final}, nil
}

// Final returns the path the staged file is committed to.
func (st *Staged) Final() string {
	return st.final
}

// Commit moves the staged file into place and records it in the ledger. digest
// is the verified digest; when zero a sha256 is computed for the ledger.
func (st *Staged) Commit(ctx context.Context, digest integrity.Digest) (string, error) {
	if st.done {
		return st.final, nil
	}
	st.done = true

	tmp := st.Name()
	if err := st.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", commitError("failed to close staging file", err, tmp)
	}
	if err := os.Rename(tmp, st.final); err != nil {
		_ = os.Remove(tmp)
		return "", commitError("failed to move download into cache", err, st.final)
	}

	recorded := digest.String()
	if digest.IsZero() {
		if sum, err := integrity.Compute(st.final, integrity.DefaultAlgorithm); err == nil {
			recorded = string(integrity.DefaultAlgorithm) + ":" + sum
		}
	}
	st.store.record(ctx, st.url, st.final, recorded)
	return st.final, nil
}

// Discard removes the staged file.
func (st *Staged) Discard() {
	if st.done {
		return
	}
	st.done = true
	tmp := st.Name()
	_ = st.Close()
	_ = os.Remove(tmp)
}

func commitError(msg string, err error, p string) error {
	return apperrors.SystemError(apperrors.CodeCacheIO, msg, err).
		WithModule("cache").
		WithOperation("Commit").
		WithField("path", p)
}
