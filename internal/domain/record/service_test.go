package record_test

import (
	"context"
	"testing"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/rpggio/qasync/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecordService_Commit(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.RecordRepository{}
	activities := &mocks.ActivityRepository{}
	repo.On("Commit", ctx, mock.MatchedBy(func(rec *record.SyncRecord) bool {
		return rec.Project == "demo" && rec.EventID == "e1" && rec.IssueID == "ISS-1" && !rec.ProcessedAt.IsZero()
	})).Return(nil)
	activities.On("Log", ctx, mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeEventSynced && *e.EventID == "e1"
	})).Return(nil)

	svc := record.NewService(repo, activities, nil)
	rec, err := svc.Commit(ctx, record.CommitRequest{
		Project:  "demo",
		EventID:  "e1",
		IssueID:  "ISS-1",
		Category: record.CategoryBug,
	})
	require.NoError(t, err)
	require.Equal(t, record.CategoryBug, rec.Category)
	repo.AssertExpectations(t)
	activities.AssertExpectations(t)
}

func TestRecordService_CommitMergedLogsMerge(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.RecordRepository{}
	activities := &mocks.ActivityRepository{}
	repo.On("Commit", ctx, mock.Anything).Return(nil)
	activities.On("Log", ctx, mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeEventMerged
	})).Return(nil)

	svc := record.NewService(repo, activities, nil)
	rec, err := svc.Commit(ctx, record.CommitRequest{
		Project: "demo", EventID: "e2", IssueID: "ISS-1", Category: record.CategoryBug, Merged: true,
	})
	require.NoError(t, err)
	require.True(t, rec.Merged)
	activities.AssertExpectations(t)
}

func TestRecordService_CommitDuplicate(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.RecordRepository{}
	repo.On("Commit", ctx, mock.Anything).Return(repository.ErrDuplicate)

	svc := record.NewService(repo, nil, nil)
	_, err := svc.Commit(ctx, record.CommitRequest{
		Project: "demo", EventID: "e1", IssueID: "ISS-1", Category: record.CategoryBug,
	})
	require.ErrorIs(t, err, record.ErrDuplicateEvent)
}

func TestRecordService_CommitUnknownProject(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.RecordRepository{}
	repo.On("Commit", ctx, mock.Anything).Return(repository.ErrForeignKeyViolation)

	svc := record.NewService(repo, nil, nil)
	_, err := svc.MarkSynced(ctx, record.CommitRequest{
		Project: "nope", EventID: "e1", IssueID: "ISS-1", Category: record.CategoryBug,
	})
	require.ErrorIs(t, err, record.ErrProjectNotFound)
}

func TestRecordService_CommitValidation(t *testing.T) {
	svc := record.NewService(&mocks.RecordRepository{}, nil, nil)
	cases := []record.CommitRequest{
		{EventID: "e1", IssueID: "i", Category: record.CategoryBug},
		{Project: "demo", IssueID: "i", Category: record.CategoryBug},
		{Project: "demo", EventID: "e1", Category: record.CategoryBug},
		{Project: "demo", EventID: "e1", IssueID: "i", Category: "feature"},
	}
	for _, req := range cases {
		_, err := svc.Commit(context.Background(), req)
		require.ErrorIs(t, err, record.ErrInvalidInput)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := record.ParseCategory("data-error")
	require.NoError(t, err)
	require.Equal(t, record.CategoryDataError, c)

	c, err = record.ParseCategory(" BUG ")
	require.NoError(t, err)
	require.Equal(t, record.CategoryBug, c)

	_, err = record.ParseCategory("feature")
	require.ErrorIs(t, err, record.ErrInvalidInput)
}

func TestRecordService_GetNotFound(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.RecordRepository{}
	repo.On("Get", ctx, "demo", "e9").Return((*record.SyncRecord)(nil), repository.ErrNotFound)

	svc := record.NewService(repo, nil, nil)
	_, err := svc.Get(ctx, "demo", "e9")
	require.ErrorIs(t, err, record.ErrRecordNotFound)
}
