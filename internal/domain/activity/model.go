package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeProjectCreated      ActivityType = "project_created"
	TypeProjectReconfigured ActivityType = "project_reconfigured"
	TypeScenarioProgress    ActivityType = "scenario_progress"
	TypeEventSynced         ActivityType = "event_synced"
	TypeEventMerged         ActivityType = "event_merged"
	TypeEventAdopted        ActivityType = "event_adopted"
	TypeEventDuplicate      ActivityType = "event_duplicate"
	TypeEventFailed         ActivityType = "event_failed"
	TypeMarkedSynced        ActivityType = "marked_synced"
	TypeCursorAdvanced      ActivityType = "cursor_advanced"
	TypeLeaseAcquired       ActivityType = "lease_acquired"
	TypeLeaseReleased       ActivityType = "lease_released"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	Project      string       `json:"project"`
	EventID      *string      `json:"event_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
