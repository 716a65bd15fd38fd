package cursor

import (
	"context"

	"github.com/rpggio/qasync/internal/domain/activity"
)

// Repository persists cursors. Advance stores max(current, c.Position),
// always refreshes PolledAt and IntervalSeconds, and returns the stored cursor.
type Repository interface {
	Get(ctx context.Context, project, channel string) (*Cursor, error)
	Advance(ctx context.Context, c *Cursor) (*Cursor, error)
	List(ctx context.Context, project string) ([]Cursor, error)
}

// ActivityRepository logs cursor movements.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}
