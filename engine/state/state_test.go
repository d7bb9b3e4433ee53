package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/pkg/resilience"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	fast := resilience.LimiterOpts{Rate: 100000, Burst: 100000, MaxConcurrent: 100}
	coord := resilience.NewCoordinator(map[resilience.Class]resilience.LimiterOpts{
		resilience.ClassDatabase: fast,
	})
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"), coord)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.CreateSession(ctx, "s1", []string{"golang", "u/alice"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMetadata(ctx, "s1", map[string]any{"posts": 12}); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindResumable(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "s1" || found[0].Status != StatusRunning {
		t.Fatalf("found: %+v", found)
	}
	if len(found[0].Targets) != 2 || found[0].Targets[1] != "u/alice" {
		t.Fatalf("targets: %v", found[0].Targets)
	}
	if found[0].Metadata["posts"] != float64(12) {
		t.Fatalf("metadata: %v", found[0].Metadata)
	}

	if err := store.UpdateSessionStatus(ctx, "s1", StatusCompleted); err != nil {
		t.Fatal(err)
	}
	found, err = store.FindResumable(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("completed session must not be resumable: %+v", found)
	}
}

func TestFindResumableAgeCutoff(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return old }
	if err := store.CreateSession(ctx, "stale", []string{"pics"}); err != nil {
		t.Fatal(err)
	}

	store.now = time.Now
	if err := store.CreateSession(ctx, "fresh", []string{"pics"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateSessionStatus(ctx, "fresh", StatusInterrupted); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindResumable(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "fresh" {
		t.Fatalf("found: %+v", found)
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	store := openTestStore(t)
	err := store.UpdateSessionStatus(context.Background(), "nope", StatusFailed)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("err: %v", err)
	}
}
