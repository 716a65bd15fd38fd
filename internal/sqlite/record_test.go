package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/stretchr/testify/require"
)

func newRecord(projectName, eventID string) *record.SyncRecord {
	return &record.SyncRecord{
		Project:     projectName,
		EventID:     eventID,
		IssueID:     "ISS-" + eventID,
		Category:    record.CategoryBug,
		ProcessedAt: time.Now().UTC(),
	}
}

func TestRecordRepository_CommitGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")

	repo := NewRecordRepository(db)
	rec := newRecord("p1", "e1")
	rec.Merged = true
	rec.CommentID = "c-1"
	require.NoError(t, repo.Commit(ctx, rec))

	loaded, err := repo.Get(ctx, "p1", "e1")
	require.NoError(t, err)
	require.Equal(t, rec.IssueID, loaded.IssueID)
	require.Equal(t, rec.Category, loaded.Category)
	require.True(t, loaded.Merged)
	require.Equal(t, "c-1", loaded.CommentID)

	_, err = repo.Get(ctx, "p1", "missing")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestRecordRepository_CommitDuplicate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")

	repo := NewRecordRepository(db)
	require.NoError(t, repo.Commit(ctx, newRecord("p1", "e1")))

	err := repo.Commit(ctx, newRecord("p1", "e1"))
	require.Equal(t, repository.ErrDuplicate, err)

	loaded, err := repo.Get(ctx, "p1", "e1")
	require.NoError(t, err)
	require.Equal(t, "ISS-e1", loaded.IssueID)
}

func TestRecordRepository_CommitUnknownProject(t *testing.T) {
	db := NewTestDB(t)
	repo := NewRecordRepository(db)

	err := repo.Commit(context.Background(), newRecord("missing", "e1"))
	require.Equal(t, repository.ErrForeignKeyViolation, err)
}

func TestRecordRepository_ConcurrentCommitsSameEvent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewRecordRepository(db)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newRecord("p1", "e1")
			rec.IssueID = fmt.Sprintf("ISS-%d", i)
			errs[i] = repo.Commit(ctx, rec)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, repository.ErrDuplicate, err)
	}
	require.Equal(t, 1, succeeded)
}

func TestRecordRepository_Exists(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewRecordRepository(db)

	ok, err := repo.Exists(ctx, "p1", "e1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.Commit(ctx, newRecord("p1", "e1")))

	ok, err = repo.Exists(ctx, "p1", "e1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordRepository_List(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	insertProject(t, db, "p2")
	repo := NewRecordRepository(db)

	base := time.Now().UTC().Truncate(time.Second)
	for i, cat := range []record.Category{record.CategoryBug, record.CategoryImprovement, record.CategoryBug} {
		rec := newRecord("p1", fmt.Sprintf("e%d", i+1))
		rec.Category = cat
		rec.ProcessedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Commit(ctx, rec))
	}
	require.NoError(t, repo.Commit(ctx, newRecord("p2", "x1")))

	recs, err := repo.List(ctx, "p1", record.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "e1", recs[0].EventID)
	require.Equal(t, "e3", recs[2].EventID)

	bug := record.CategoryBug
	recs, err = repo.List(ctx, "p1", record.ListOptions{Category: &bug})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	recs, err = repo.List(ctx, "p1", record.ListOptions{Offset: 1})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "e2", recs[0].EventID)

	recs, err = repo.List(ctx, "p1", record.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = repo.List(ctx, "missing", record.ListOptions{})
	require.Equal(t, repository.ErrNotFound, err)
}
