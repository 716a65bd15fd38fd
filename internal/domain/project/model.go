package project

import "time"

// Project is a named sync target: one feedback channel feeding one tracker project.
type Project struct {
	Name      string            `json:"name"`
	Config    Config            `json:"config"`
	Scenarios *ScenarioProgress `json:"scenario_progress,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Config holds the per-project wiring between source and tracker.
type Config struct {
	SiteURL             string `json:"site_url,omitempty" yaml:"site_url"`
	PRDRef              string `json:"prd_ref,omitempty" yaml:"prd_ref"`
	Channel             string `json:"channel,omitempty" yaml:"channel"`
	Thread              string `json:"thread,omitempty" yaml:"thread"`
	TrackerProjectID    string `json:"tracker_project_id,omitempty" yaml:"tracker_project_id"`
	TrackerProjectURL   string `json:"tracker_project_url,omitempty" yaml:"tracker_project_url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds,omitempty" yaml:"poll_interval_seconds"`
}

// TrackerScope returns the tracker project issues are filed under,
// falling back to the project name for trackers without project ids.
func (p *Project) TrackerScope() string {
	if p.Config.TrackerProjectID != "" {
		return p.Config.TrackerProjectID
	}
	return p.Name
}

// ScenarioProgress counts checked scenario rows. It is written by the
// document generator and only read by stats.
type ScenarioProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// ProjectSummary is a lightweight representation for listing
type ProjectSummary struct {
	Name        string    `json:"name"`
	Channel     string    `json:"channel,omitempty"`
	Thread      string    `json:"thread,omitempty"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
	// Corrupt is set when the project's stored document cannot be decoded.
	Corrupt bool `json:"corrupt,omitempty"`
}
