// Package data persists the artifact and run ledger.
package data

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a ledger lookup has no row.
var ErrNotFound = errors.New("data: record not found")

// Artifact is the ledger row for one committed cache entry.
type Artifact struct {
	URL        string
	Path       string
	Digest     string
	Size       int64
	ModTime    time.Time
	RecordedAt time.Time
}

// Failure is one failed descriptor or exposure within a run.
type Failure struct {
	URL      string
	Exposure string
	Kind     string
	Message  string
}

// Run summarizes one bootstrap invocation.
type Run struct {
	ID         string
	Platform   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failures   []Failure
}

// Failed returns the number of descriptors that did not finish.
func (r Run) Failed() int {
	return r.Total - r.Succeeded
}

// Repository describes the persistence contract for the ledger.
type Repository interface {
	// Bootstrap prepares the backing store (schema creation).
	Bootstrap(ctx context.Context) error

	RecordArtifact(ctx context.Context, a Artifact) error
	LookupArtifact(ctx context.Context, url string) (Artifact, error)
	ForgetArtifact(ctx context.Context, url string) error
	ListArtifacts(ctx context.Context) ([]Artifact, error)

	RecordRun(ctx context.Context, run Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}
