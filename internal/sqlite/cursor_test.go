package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCursorRepository_AdvanceIsMonotonic(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewCursorRepository(db)

	_, err := repo.Get(ctx, "p1", "C1")
	require.Equal(t, repository.ErrNotFound, err)

	t0 := time.Now().UTC().Truncate(time.Second)
	stored, err := repo.Advance(ctx, &cursor.Cursor{Project: "p1", Channel: "C1", Position: "1700000010.000200", PolledAt: t0, IntervalSeconds: 60})
	require.NoError(t, err)
	require.Equal(t, "1700000010.000200", stored.Position)

	t1 := t0.Add(time.Minute)
	stored, err = repo.Advance(ctx, &cursor.Cursor{Project: "p1", Channel: "C1", Position: "1700000009.999999", PolledAt: t1, IntervalSeconds: 60})
	require.NoError(t, err)
	require.Equal(t, "1700000010.000200", stored.Position, "position must not move backwards")

	loaded, err := repo.Get(ctx, "p1", "C1")
	require.NoError(t, err)
	require.Equal(t, "1700000010.000200", loaded.Position)
	require.True(t, t1.Equal(loaded.PolledAt), "polled_at refreshes even without progress")
	require.Equal(t, 60, loaded.IntervalSeconds)

	stored, err = repo.Advance(ctx, &cursor.Cursor{Project: "p1", Channel: "C1", Position: "1700000011", PolledAt: t1})
	require.NoError(t, err)
	require.Equal(t, "1700000011", stored.Position)
}

func TestCursorRepository_UnknownProject(t *testing.T) {
	db := NewTestDB(t)
	repo := NewCursorRepository(db)

	_, err := repo.Advance(context.Background(), &cursor.Cursor{Project: "missing", Channel: "C1", Position: "1", PolledAt: time.Now()})
	require.Equal(t, repository.ErrForeignKeyViolation, err)
}

func TestCursorRepository_List(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewCursorRepository(db)

	for _, ch := range []string{"C2", "C1"} {
		_, err := repo.Advance(ctx, &cursor.Cursor{Project: "p1", Channel: ch, Position: "1", PolledAt: time.Now()})
		require.NoError(t, err)
	}

	cursors, err := repo.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, cursors, 2)
	require.Equal(t, "C1", cursors[0].Channel)
}
