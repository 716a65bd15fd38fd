package syncer

import (
	"time"

	"github.com/rpggio/qasync/internal/domain/record"
)

// State is the orchestrator phase for a project.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StateCommitting State = "committing"
)

// OutcomeKind classifies what happened to one event.
type OutcomeKind string

const (
	// OutcomeCreated filed a new issue.
	OutcomeCreated OutcomeKind = "created"
	// OutcomeMerged commented on an existing similar issue.
	OutcomeMerged OutcomeKind = "merged"
	// OutcomeAdopted recorded an issue created by an interrupted run.
	OutcomeAdopted OutcomeKind = "adopted"
	// OutcomeSkipped means the event already had a record.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeDuplicate means a concurrent run committed the event first.
	OutcomeDuplicate OutcomeKind = "duplicate"
	// OutcomeFailed leaves the event unsynced for the next cycle.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the result of processing one event.
type Outcome struct {
	EventID  string          `json:"event_id"`
	Kind     OutcomeKind     `json:"kind"`
	IssueID  string          `json:"issue_id,omitempty"`
	IssueURL string          `json:"issue_url,omitempty"`
	Category record.Category `json:"category,omitempty"`
	Title    string          `json:"title,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Report summarises one sync run, or the totals of a watch.
type Report struct {
	Project    string    `json:"project"`
	Cycles     int       `json:"cycles"`
	Fetched    int       `json:"fetched"`
	Processed  int       `json:"processed"`
	Created    int       `json:"created"`
	Merged     int       `json:"merged"`
	Adopted    int       `json:"adopted"`
	Skipped    int       `json:"skipped"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Cursor     string    `json:"cursor,omitempty"`
	// CycleErrors counts watch cycles that failed before processing events.
	CycleErrors int       `json:"cycle_errors,omitempty"`
	Interrupted bool      `json:"interrupted,omitempty"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeCreated:
		r.Created++
		r.Processed++
	case OutcomeMerged:
		r.Merged++
		r.Processed++
	case OutcomeAdopted:
		r.Adopted++
		r.Processed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeFailed:
		r.Failed++
	}
}

// merge folds a cycle report into watch totals. Per-event outcomes are not
// kept so long watches stay bounded.
func (r *Report) merge(c *Report) {
	r.Cycles++
	r.Fetched += c.Fetched
	r.Processed += c.Processed
	r.Created += c.Created
	r.Merged += c.Merged
	r.Adopted += c.Adopted
	r.Skipped += c.Skipped
	r.Duplicates += c.Duplicates
	r.Failed += c.Failed
	if c.Cursor != "" {
		r.Cursor = c.Cursor
	}
	r.Interrupted = r.Interrupted || c.Interrupted
}
