package image

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSweeper(dryRun bool) (*Sweeper, *repoStub, *storageStub) {
	repo := newRepoStub()
	st := newStorageStub()
	sw := NewSweeper(muralTestCatalog(), repo, st, 15*time.Minute, dryRun)
	sw.now = func() time.Time { return fixedNow }
	return sw, repo, st
}

func TestSweepReclaimsStalePendingAndOrphans(t *testing.T) {
	sw, repo, st := newTestSweeper(false)
	old := fixedNow.Add(-time.Hour)

	active := seedActive(repo, "mural-100.jpg", 10)
	st.put(active.Filename, 10, old)

	stale := &Record{ID: uuid.New(), Filename: "mural-200.jpg", FileSize: 20, Status: StatusPending, UploadedAt: old}
	repo.add(stale)
	st.put(stale.Filename, 20, old)

	fresh := &Record{ID: uuid.New(), Filename: "mural-300.jpg", FileSize: 30, Status: StatusPending, UploadedAt: fixedNow.Add(-time.Minute)}
	repo.add(fresh)

	st.put("mural-400.jpg", 40, old)                        // orphan
	st.put("mural-500.jpg", 50, fixedNow.Add(-time.Minute)) // too young to judge
	st.put("food-600.jpg", 60, old)                         // outside this catalog's prefix

	report, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if report.StalePending != 1 || report.DiscardedRows != 1 {
		t.Fatalf("unexpected pending counts: %+v", report)
	}
	if len(report.OrphanBlobs) != 1 || report.OrphanBlobs[0] != "mural-400.jpg" || report.RemovedBlobs != 1 {
		t.Fatalf("unexpected orphans: %+v", report)
	}
	if st.has(stale.Filename) || st.has("mural-400.jpg") {
		t.Fatal("stale and orphan blobs should be removed")
	}
	if !st.has(active.Filename) || !st.has("mural-500.jpg") || !st.has("food-600.jpg") {
		t.Fatal("live, young and foreign blobs must be kept")
	}
	if _, err := repo.FindByID(context.Background(), active.ID); err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if repo.count() != 2 {
		t.Fatalf("expected active and fresh pending rows to remain, got %d", repo.count())
	}
	if report.UsedBytes != 40 {
		t.Fatalf("used bytes = %d, want 40", report.UsedBytes)
	}
}

func TestSweepDryRunChangesNothing(t *testing.T) {
	sw, repo, st := newTestSweeper(true)
	old := fixedNow.Add(-time.Hour)

	stale := &Record{ID: uuid.New(), Filename: "mural-200.jpg", FileSize: 20, Status: StatusPending, UploadedAt: old}
	repo.add(stale)
	st.put("mural-400.jpg", 40, old)

	report, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !report.DryRun || report.StalePending != 1 || len(report.OrphanBlobs) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.DiscardedRows != 0 || report.RemovedBlobs != 0 {
		t.Fatalf("dry run must not mutate: %+v", report)
	}
	if repo.count() != 1 || !st.has("mural-400.jpg") || len(st.deleted) != 0 {
		t.Fatal("dry run must not touch the catalog or the bucket")
	}
}

func TestSweepKeepsRowWhenBlobRemovalFails(t *testing.T) {
	sw, repo, st := newTestSweeper(false)
	st.deleteErr = errBoom

	stale := &Record{ID: uuid.New(), Filename: "mural-200.jpg", FileSize: 20, Status: StatusPending, UploadedAt: fixedNow.Add(-time.Hour)}
	repo.add(stale)

	report, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.FailedRemovals != 1 || report.DiscardedRows != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if repo.count() != 1 {
		t.Fatal("row must stay so the next sweep can retry")
	}
}
