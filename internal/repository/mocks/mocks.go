package mocks

import (
	"context"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for project.Repository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, name string) (*project.Project, error) {
	args := m.Called(ctx, name)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) List(ctx context.Context) ([]project.ProjectSummary, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]project.ProjectSummary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) UpdateConfig(ctx context.Context, name string, cfg project.Config, updatedAt time.Time) error {
	args := m.Called(ctx, name, cfg, updatedAt)
	return args.Error(0)
}

func (m *ProjectRepository) SetScenarioProgress(ctx context.Context, name string, progress project.ScenarioProgress, updatedAt time.Time) error {
	args := m.Called(ctx, name, progress, updatedAt)
	return args.Error(0)
}

// RecordRepository is a mock for record.Repository.
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Commit(ctx context.Context, rec *record.SyncRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *RecordRepository) Get(ctx context.Context, projectName, eventID string) (*record.SyncRecord, error) {
	args := m.Called(ctx, projectName, eventID)
	if rec, ok := args.Get(0).(*record.SyncRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) Exists(ctx context.Context, projectName, eventID string) (bool, error) {
	args := m.Called(ctx, projectName, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *RecordRepository) List(ctx context.Context, projectName string, opts record.ListOptions) ([]record.SyncRecord, error) {
	args := m.Called(ctx, projectName, opts)
	if list, ok := args.Get(0).([]record.SyncRecord); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// CursorRepository is a mock for cursor.Repository.
type CursorRepository struct {
	mock.Mock
}

func (m *CursorRepository) Get(ctx context.Context, projectName, channel string) (*cursor.Cursor, error) {
	args := m.Called(ctx, projectName, channel)
	if c, ok := args.Get(0).(*cursor.Cursor); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CursorRepository) Advance(ctx context.Context, c *cursor.Cursor) (*cursor.Cursor, error) {
	args := m.Called(ctx, c)
	if stored, ok := args.Get(0).(*cursor.Cursor); ok {
		return stored, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CursorRepository) List(ctx context.Context, projectName string) ([]cursor.Cursor, error) {
	args := m.Called(ctx, projectName)
	if list, ok := args.Get(0).([]cursor.Cursor); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// LeaseRepository is a mock for lease.Repository.
type LeaseRepository struct {
	mock.Mock
}

func (m *LeaseRepository) Acquire(ctx context.Context, l *lease.Lease, now time.Time) error {
	args := m.Called(ctx, l, now)
	return args.Error(0)
}

func (m *LeaseRepository) Release(ctx context.Context, projectName, holder string) error {
	args := m.Called(ctx, projectName, holder)
	return args.Error(0)
}

func (m *LeaseRepository) Get(ctx context.Context, projectName string) (*lease.Lease, error) {
	args := m.Called(ctx, projectName)
	if l, ok := args.Get(0).(*lease.Lease); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

// IntentRepository is a mock for intent.Repository.
type IntentRepository struct {
	mock.Mock
}

func (m *IntentRepository) Record(ctx context.Context, in *intent.Intent) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *IntentRepository) Resolve(ctx context.Context, projectName, eventID string) error {
	args := m.Called(ctx, projectName, eventID)
	return args.Error(0)
}

func (m *IntentRepository) Get(ctx context.Context, projectName, eventID string) (*intent.Intent, error) {
	args := m.Called(ctx, projectName, eventID)
	if in, ok := args.Get(0).(*intent.Intent); ok {
		return in, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *IntentRepository) List(ctx context.Context, projectName string) ([]intent.Intent, error) {
	args := m.Called(ctx, projectName)
	if list, ok := args.Get(0).([]intent.Intent); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
