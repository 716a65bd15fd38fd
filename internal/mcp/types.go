package mcp

import (
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/record"
)

type ListProjectsParams struct{}

type GetProjectParams struct {
	Name string `json:"name" jsonschema:"project name"`
}

type CreateProjectParams struct {
	Name                string `json:"name" jsonschema:"unique project name"`
	SiteURL             string `json:"site_url,omitempty" jsonschema:"site under test"`
	PRDRef              string `json:"prd_ref,omitempty" jsonschema:"PRD reference"`
	Channel             string `json:"channel,omitempty" jsonschema:"source channel id"`
	Thread              string `json:"thread,omitempty" jsonschema:"source thread id; omit to read the whole channel"`
	TrackerProjectID    string `json:"tracker_project_id,omitempty" jsonschema:"tracker project issues are filed under"`
	TrackerProjectURL   string `json:"tracker_project_url,omitempty" jsonschema:"tracker project URL"`
	PollIntervalSeconds int    `json:"poll_interval_seconds,omitempty" jsonschema:"default watch interval in seconds"`
}

type ProjectStatsParams struct {
	Name string `json:"name" jsonschema:"project name"`
}

type MarkSyncedParams struct {
	Project  string `json:"project" jsonschema:"project name"`
	EventID  string `json:"event_id" jsonschema:"source event id"`
	IssueID  string `json:"issue_id" jsonschema:"tracker issue the event belongs to"`
	Category string `json:"category" jsonschema:"bug, data_error or improvement"`
}

type SyncProjectParams struct {
	Name string `json:"name" jsonschema:"project name"`
}

type ProjectStatusParams struct {
	Name string `json:"name" jsonschema:"project name"`
}

type RecentActivityParams struct {
	Project string   `json:"project" jsonschema:"project name"`
	Limit   int      `json:"limit,omitempty" jsonschema:"maximum entries (default 20)"`
	Types   []string `json:"types,omitempty" jsonschema:"only these activity types"`
}

type ProjectSummaryResponse struct {
	Name        string    `json:"name"`
	Channel     string    `json:"channel,omitempty"`
	Thread      string    `json:"thread,omitempty"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
	Corrupt     bool      `json:"corrupt,omitempty"`
}

type MarkSyncedResponse struct {
	Record        *record.SyncRecord `json:"record,omitempty"`
	AlreadySynced bool               `json:"already_synced"`
}

type RecentActivityResponse struct {
	Entries []activity.ActivityEntry `json:"entries"`
}
