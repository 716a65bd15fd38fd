package record

import (
	"context"

	"github.com/rpggio/qasync/internal/domain/activity"
)

// Repository provides persistence for sync records. Commit must reject a
// second record for the same (project, event id) with repository.ErrDuplicate,
// atomically with respect to concurrent commits.
type Repository interface {
	Commit(ctx context.Context, rec *SyncRecord) error
	Get(ctx context.Context, project, eventID string) (*SyncRecord, error)
	Exists(ctx context.Context, project, eventID string) (bool, error)
	List(ctx context.Context, project string, opts ListOptions) ([]SyncRecord, error)
}

// ActivityRepository logs record activities.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}
