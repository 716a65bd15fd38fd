package lease

import (
	"context"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
)

// Repository persists leases. Acquire takes or renews the project lease for
// l.Holder and fails with repository.ErrConflict while a different holder's
// lease is active at now.
type Repository interface {
	Acquire(ctx context.Context, l *Lease, now time.Time) error
	Release(ctx context.Context, project, holder string) error
	Get(ctx context.Context, project string) (*Lease, error)
}

// ActivityRepository logs lease activities.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}
