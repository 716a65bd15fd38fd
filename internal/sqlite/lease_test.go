package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestLeaseRepository_AcquireConflictAndExpiry(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewLeaseRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	first := &lease.Lease{Project: "p1", Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, repo.Acquire(ctx, first, now))

	second := &lease.Lease{Project: "p1", Holder: "b", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}
	require.Equal(t, repository.ErrConflict, repo.Acquire(ctx, second, now.Add(30*time.Second)))

	// The same holder renews.
	renewed := &lease.Lease{Project: "p1", Holder: "a", AcquiredAt: now.Add(30 * time.Second), ExpiresAt: now.Add(2 * time.Minute)}
	require.NoError(t, repo.Acquire(ctx, renewed, now.Add(30*time.Second)))

	loaded, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "a", loaded.Holder)
	require.True(t, now.Equal(loaded.AcquiredAt), "renewal keeps the original acquisition time")
	require.True(t, now.Add(2*time.Minute).Equal(loaded.ExpiresAt))

	// Once expired, another holder takes over.
	later := now.Add(3 * time.Minute)
	takeover := &lease.Lease{Project: "p1", Holder: "b", AcquiredAt: later, ExpiresAt: later.Add(time.Minute)}
	require.NoError(t, repo.Acquire(ctx, takeover, later))

	loaded, err = repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "b", loaded.Holder)
}

func TestLeaseRepository_Release(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewLeaseRepository(db)

	now := time.Now().UTC()
	require.NoError(t, repo.Acquire(ctx, &lease.Lease{Project: "p1", Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}, now))

	require.Equal(t, repository.ErrNotFound, repo.Release(ctx, "p1", "b"))
	require.NoError(t, repo.Release(ctx, "p1", "a"))

	_, err := repo.Get(ctx, "p1")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestLeaseRepository_UnknownProject(t *testing.T) {
	db := NewTestDB(t)
	repo := NewLeaseRepository(db)
	now := time.Now()

	err := repo.Acquire(context.Background(), &lease.Lease{Project: "missing", Holder: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}, now)
	require.Equal(t, repository.ErrForeignKeyViolation, err)
}
