package activity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.ActivityRepository{}
	entry := &activity.ActivityEntry{
		Project:      "demo",
		ActivityType: activity.TypeEventSynced,
		Summary:      "synced e1",
	}

	repo.On("Log", ctx, entry).Return(nil)
	repo.On("List", ctx, activity.ListActivityOptions{Project: "demo", Limit: 50}).Return([]activity.ActivityEntry{*entry}, nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, entry))
	require.False(t, entry.CreatedAt.IsZero())

	entries, err := svc.GetRecentActivity(ctx, activity.ListActivityOptions{Project: "demo"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestActivityService_LogValidation(t *testing.T) {
	svc := activity.NewService(&mocks.ActivityRepository{}, nil)
	err := svc.LogActivity(context.Background(), &activity.ActivityEntry{ActivityType: activity.TypeEventSynced})
	require.ErrorIs(t, err, activity.ErrInvalidInput)
}

func TestLog_SwallowsErrors(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	repo.On("Log", ctx, mock.Anything).Return(errors.New("disk full"))

	require.NotPanics(t, func() {
		activity.Log(ctx, repo, nil, &activity.ActivityEntry{Project: "demo", ActivityType: activity.TypeEventFailed})
	})
	repo.AssertExpectations(t)
}
