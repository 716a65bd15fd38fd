package project

import (
	"context"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
)

// Repository provides persistence for projects.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, name string) (*Project, error)
	List(ctx context.Context) ([]ProjectSummary, error)
	UpdateConfig(ctx context.Context, name string, cfg Config, updatedAt time.Time) error
	SetScenarioProgress(ctx context.Context, name string, progress ScenarioProgress, updatedAt time.Time) error
}

// ActivityRepository logs project activities.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}
