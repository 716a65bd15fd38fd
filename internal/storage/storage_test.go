package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/stretchr/testify/require"
)

// Both backends satisfy the same contract.
func TestBackends_SharedContract(t *testing.T) {
	for _, kind := range []string{KindFile, KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state."+kind)
			backend, err := Open(Options{Kind: kind, Path: path})
			require.NoError(t, err)
			defer backend.Close()
			require.Equal(t, kind, backend.Kind)

			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, backend.Projects.Create(ctx, &project.Project{Name: "demo", CreatedAt: now, UpdatedAt: now}))

			rec := &record.SyncRecord{Project: "demo", EventID: "e1", IssueID: "I1", Category: record.CategoryBug, ProcessedAt: now}
			require.NoError(t, backend.Records.Commit(ctx, rec))
			require.Equal(t, repository.ErrDuplicate, backend.Records.Commit(ctx, rec))

			summaries, err := backend.Projects.List(ctx)
			require.NoError(t, err)
			require.Len(t, summaries, 1)
			require.Equal(t, 1, summaries[0].RecordCount)
		})
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(Options{Kind: "etcd", Path: "x"})
	require.Error(t, err)
}
