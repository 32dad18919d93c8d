package data

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	url         TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	digest      TEXT NOT NULL,
	size        INTEGER NOT NULL,
	mod_time    INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	platform    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_failures (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	url      TEXT NOT NULL,
	exposure TEXT NOT NULL DEFAULT '',
	kind     TEXT NOT NULL,
	message  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS run_failures_run ON run_failures(run_id);
`

// SQLiteRepository persists the ledger in a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wires a SQLite-backed implementation of Repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db: db,
	}
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create ledger directory for %s", path)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open ledger %s", path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return NewSQLiteRepository(db), nil
}

// Bootstrap creates the schema.
func (r *SQLiteRepository) Bootstrap(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create ledger schema")
	}
	return nil
}

// RecordArtifact inserts or replaces the row for a.URL.
func (r *SQLiteRepository) RecordArtifact(ctx context.Context, a Artifact) error {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (url, path, digest, size, mod_time, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			path = excluded.path,
			digest = excluded.digest,
			size = excluded.size,
			mod_time = excluded.mod_time,
			recorded_at = excluded.recorded_at`,
		a.URL, a.Path, a.Digest, a.Size, a.ModTime.UnixNano(), a.RecordedAt.UnixNano(),
	)
	return errors.Wrapf(err, "failed to record artifact %s", a.URL)
}

// LookupArtifact returns the row for url or ErrNotFound.
func (r *SQLiteRepository) LookupArtifact(ctx context.Context, url string) (Artifact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT url, path, digest, size, mod_time, recorded_at FROM artifacts WHERE url = ?`, url)
	a, err := scanArtifact(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "failed to look up artifact %s", url)
	}
	return a, nil
}

// ForgetArtifact removes the row for url. Missing rows are not an error.
func (r *SQLiteRepository) ForgetArtifact(ctx context.Context, url string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE url = ?`, url)
	return errors.Wrapf(err, "failed to forget artifact %s", url)
}

// ListArtifacts returns every artifact ordered by URL.
func (r *SQLiteRepository) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url, path, digest, size, mod_time, recorded_at FROM artifacts ORDER BY url`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list artifacts")
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "failed to list artifacts")
}

// RecordRun stores run and its failures in one transaction.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run Run) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin run transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, platform, started_at, finished_at, total, succeeded) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Platform, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Total, run.Succeeded,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record run %s", run.ID)
	}

	for _, f := range run.Failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_failures (run_id, url, exposure, kind, message) VALUES (?, ?, ?, ?, ?)`,
			run.ID, f.URL, f.Exposure, f.Kind, f.Message,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to record failure for %s", f.URL)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

// RecentRuns returns up to limit runs, newest first, with their failures.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, platform, started_at, finished_at, total, succeeded
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &run.Platform, &started, &finished, &run.Total, &run.Succeeded); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan run")
		}
		run.StartedAt = time.Unix(0, started)
		run.FinishedAt = time.Unix(0, finished)
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}

	for i := range runs {
		failures, err := r.failures(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

func (r *SQLiteRepository) failures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url, exposure, kind, message FROM run_failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query failures for run %s", runID)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.URL, &f.Exposure, &f.Kind, &f.Message); err != nil {
			return nil, errors.Wrap(err, "failed to scan failure")
		}
		out = append(out, f)
	}
	return out, errors.Wrap(rows.Err(), "failed to query failures")
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(s scanner) (Artifact, error) {
	var (
		a                 Artifact
		modTime, recorded int64
	)
	if err := s.Scan(&a.URL, &a.Path, &a.Digest, &a.Size, &modTime, &recorded); err != nil {
		return Artifact{}, err
	}
	a.ModTime = time.Unix(0, modTime)
	a.RecordedAt = time.Unix(0, recorded)
	return a, nil
}

var _ Repository = (*SQLiteRepository)(nil)
