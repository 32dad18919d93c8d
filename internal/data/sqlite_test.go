package data

import (
	"context"
	stdErrors "errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger", "binstrap.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if err := repo.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return repo
}

func TestArtifactLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if _, err := repo.LookupArtifact(ctx, "https://example.com/a.zip"); !stdErrors.Is(err, ErrNotFound) {
		t.Fatalf("lookup before record: %v", err)
	}

	mod := time.Unix(1700000000, 123456789)
	want := Artifact{URL: "https://example.com/a.zip", Path: "/cache/abc-a.zip", Digest: "sha256:00", Size: 42, ModTime: mod}
	if err := repo.RecordArtifact(ctx, want); err != nil {
		t.Fatalf("RecordArtifact: %v", err)
	}

	want.Digest = "sha256:11"
	want.Size = 43
	if err := repo.RecordArtifact(ctx, want); err != nil {
		t.Fatalf("RecordArtifact upsert: %v", err)
	}

	got, err := repo.LookupArtifact(ctx, want.URL)
	if err != nil {
		t.Fatalf("LookupArtifact: %v", err)
	}
	if got.Digest != "sha256:11" || got.Size != 43 || !got.ModTime.Equal(mod) || got.RecordedAt.IsZero() {
		t.Fatalf("got %+v", got)
	}

	all, err := repo.ListArtifacts(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListArtifacts = %v, %v", all, err)
	}

	if err := repo.ForgetArtifact(ctx, want.URL); err != nil {
		t.Fatalf("ForgetArtifact: %v", err)
	}
	if _, err := repo.LookupArtifact(ctx, want.URL); !stdErrors.Is(err, ErrNotFound) {
		t.Fatalf("lookup after forget: %v", err)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := Run{
			ID:         id,
			Platform:   "linux",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Total:      3,
			Succeeded:  3 - i,
		}
		for j := 0; j < i; j++ {
			run.Failures = append(run.Failures, Failure{URL: "https://x/" + id, Kind: "NETWORK_ERROR", Message: "boom"})
		}
		if err := repo.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun(%s): %v", id, err)
		}
	}

	runs, err := repo.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Fatalf("runs = %+v", runs)
	}
	if len(runs[0].Failures) != 2 || runs[0].Failed() != 2 {
		t.Fatalf("run-3 failures = %+v", runs[0].Failures)
	}
}

func TestRecordRunRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	run := Run{ID: "dup", Platform: "linux", StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := repo.RecordRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordRun(ctx, run); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
