package statefile

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestProjectRepository_CreateGetUpdate(t *testing.T) {
	store := newTestStore(t)
	repo := NewProjectRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	proj := &project.Project{
		Name:      "alpha",
		Config:    project.Config{SiteURL: "https://example.com", Channel: "C1", Thread: "1700000000.000100"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, proj))
	require.Equal(t, repository.ErrDuplicate, repo.Create(ctx, proj))

	loaded, err := repo.Get(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, proj.Config, loaded.Config)
	require.True(t, now.Equal(loaded.CreatedAt))

	_, err = repo.Get(ctx, "missing")
	require.Equal(t, repository.ErrNotFound, err)

	cfg := project.Config{Channel: "C2", PollIntervalSeconds: 15}
	require.NoError(t, repo.UpdateConfig(ctx, "alpha", cfg, now.Add(time.Minute)))
	require.NoError(t, repo.SetScenarioProgress(ctx, "alpha", project.ScenarioProgress{Total: 4, Completed: 1}, now.Add(time.Minute)))

	loaded, err = repo.Get(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, cfg, loaded.Config)
	require.Equal(t, &project.ScenarioProgress{Total: 4, Completed: 1}, loaded.Scenarios)

	require.Equal(t, repository.ErrNotFound, repo.UpdateConfig(ctx, "missing", cfg, now))
}

func TestRecordRepository_CommitListFilters(t *testing.T) {
	store := newTestStore(t)
	createProject(t, store, "alpha")
	repo := NewRecordRepository(store)
	ctx := context.Background()

	base := time.Now().UTC()
	cats := []record.Category{record.CategoryImprovement, record.CategoryBug, record.CategoryBug}
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repo.Commit(ctx, &record.SyncRecord{
			Project:     "alpha",
			EventID:     id,
			IssueID:     "I-" + id,
			Category:    cats[i],
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	err := repo.Commit(ctx, &record.SyncRecord{Project: "alpha", EventID: "e1", IssueID: "other", Category: record.CategoryBug})
	require.Equal(t, repository.ErrDuplicate, err)

	err = repo.Commit(ctx, &record.SyncRecord{Project: "missing", EventID: "e1", IssueID: "I", Category: record.CategoryBug})
	require.Equal(t, repository.ErrForeignKeyViolation, err)

	loaded, err := repo.Get(ctx, "alpha", "e1")
	require.NoError(t, err)
	require.Equal(t, "I-e1", loaded.IssueID)

	ok, err := repo.Exists(ctx, "alpha", "e2")
	require.NoError(t, err)
	require.True(t, ok)

	recs, err := repo.List(ctx, "alpha", record.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2", "e3"}, eventIDs(recs))

	bug := record.CategoryBug
	recs, err = repo.List(ctx, "alpha", record.ListOptions{Category: &bug, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"e2"}, eventIDs(recs))

	recs, err = repo.List(ctx, "alpha", record.ListOptions{Offset: 5})
	require.NoError(t, err)
	require.Empty(t, recs)

	_, err = repo.List(ctx, "missing", record.ListOptions{})
	require.Equal(t, repository.ErrNotFound, err)
}

func eventIDs(recs []record.SyncRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.EventID
	}
	return ids
}

func TestCursorRepository_Monotonic(t *testing.T) {
	store := newTestStore(t)
	createProject(t, store, "alpha")
	repo := NewCursorRepository(store)
	ctx := context.Background()

	t0 := time.Now().UTC()
	_, err := repo.Advance(ctx, &cursor.Cursor{Project: "alpha", Channel: "C1", Position: "1700000005.000000", PolledAt: t0})
	require.NoError(t, err)

	t1 := t0.Add(time.Minute)
	stored, err := repo.Advance(ctx, &cursor.Cursor{Project: "alpha", Channel: "C1", Position: "1700000001.000000", PolledAt: t1, IntervalSeconds: 30})
	require.NoError(t, err)
	require.Equal(t, "1700000005.000000", stored.Position)

	loaded, err := repo.Get(ctx, "alpha", "C1")
	require.NoError(t, err)
	require.Equal(t, "1700000005.000000", loaded.Position)
	require.True(t, t1.Equal(loaded.PolledAt))
	require.Equal(t, 30, loaded.IntervalSeconds)

	_, err = repo.Get(ctx, "alpha", "C9")
	require.Equal(t, repository.ErrNotFound, err)

	_, err = repo.Advance(ctx, &cursor.Cursor{Project: "missing", Channel: "C1", Position: "1"})
	require.Equal(t, repository.ErrForeignKeyViolation, err)

	list, err := repo.List(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestLeaseRepository_Semantics(t *testing.T) {
	store := newTestStore(t)
	createProject(t, store, "alpha")
	repo := NewLeaseRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Acquire(ctx, &lease.Lease{Project: "alpha", Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}, now))
	require.Equal(t, repository.ErrConflict, repo.Acquire(ctx, &lease.Lease{Project: "alpha", Holder: "b", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}, now))

	later := now.Add(2 * time.Minute)
	require.NoError(t, repo.Acquire(ctx, &lease.Lease{Project: "alpha", Holder: "b", AcquiredAt: later, ExpiresAt: later.Add(time.Minute)}, later))

	got, err := repo.Get(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, "b", got.Holder)

	require.Equal(t, repository.ErrNotFound, repo.Release(ctx, "alpha", "a"))
	require.NoError(t, repo.Release(ctx, "alpha", "b"))
	_, err = repo.Get(ctx, "alpha")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestIntentRepository_RecordResolve(t *testing.T) {
	store := newTestStore(t)
	createProject(t, store, "alpha")
	repo := NewIntentRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Record(ctx, &intent.Intent{Project: "alpha", EventID: "e2", Title: "second", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Record(ctx, &intent.Intent{Project: "alpha", EventID: "e1", Title: "first", CreatedAt: now}))

	list, err := repo.List(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "e1", list[0].EventID)

	require.NoError(t, repo.Resolve(ctx, "alpha", "e1"))
	require.NoError(t, repo.Resolve(ctx, "alpha", "e1"))
	_, err = repo.Get(ctx, "alpha", "e1")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestActivityRepository_CapAndOrder(t *testing.T) {
	store := newTestStore(t)
	createProject(t, store, "alpha")
	createProject(t, store, "beta")
	repo := NewActivityRepository(store)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < MaxActivity+5; i++ {
		require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
			Project:      "alpha",
			ActivityType: activity.TypeCursorAdvanced,
			Summary:      "tick",
			CreatedAt:    base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	eventID := "e1"
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		Project:      "beta",
		EventID:      &eventID,
		ActivityType: activity.TypeEventSynced,
		Summary:      "synced",
		CreatedAt:    base.Add(time.Hour),
	}))

	entries, err := repo.List(ctx, activity.ListActivityOptions{Project: "alpha"})
	require.NoError(t, err)
	require.Len(t, entries, MaxActivity)
	require.Equal(t, int64(MaxActivity+5), entries[0].ID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "beta", entries[0].Project)

	entries, err = repo.List(ctx, activity.ListActivityOptions{EventID: &eventID})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	err = repo.Log(ctx, &activity.ActivityEntry{Project: "missing", ActivityType: activity.TypeEventSynced})
	require.Equal(t, repository.ErrNotFound, err)
}
