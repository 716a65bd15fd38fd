package intent

import "context"

// Repository persists intents. Record overwrites an existing intent for the
// same event; Resolve of a missing intent is not an error.
type Repository interface {
	Record(ctx context.Context, in *Intent) error
	Resolve(ctx context.Context, project, eventID string) error
	Get(ctx context.Context, project, eventID string) (*Intent, error)
	List(ctx context.Context, project string) ([]Intent, error)
}
