package intent

import "time"

// Intent marks an event whose tracker issue is about to be created. An intent
// that outlives its run means the issue may exist without a sync record.
type Intent struct {
	Project   string    `json:"project"`
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
