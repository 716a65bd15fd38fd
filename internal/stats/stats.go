// Package stats derives read-only progress summaries from stored sync
// records and scenario progress.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
)

// Counts holds records per category.
type Counts struct {
	Bug         int `json:"bug"`
	DataError   int `json:"data_error"`
	Improvement int `json:"improvement"`
}

// Summary is the progress of one project.
type Summary struct {
	Project string `json:"project"`
	Counts  Counts `json:"counts"`
	Total   int    `json:"total"`
	// Merged counts events filed as comments on an existing issue.
	Merged          int                       `json:"merged"`
	Issues          int                       `json:"issues"`
	LastProcessedAt *time.Time                `json:"last_processed_at,omitempty"`
	Scenario        *project.ScenarioProgress `json:"scenario_progress,omitempty"`
	// CompletionPercent is set only when scenario progress exists.
	CompletionPercent *float64 `json:"completion_percent,omitempty"`
	Corrupt           bool     `json:"corrupt,omitempty"`
}

// ProjectReader loads projects.
type ProjectReader interface {
	Get(ctx context.Context, name string) (*project.Project, error)
	List(ctx context.Context) ([]project.ProjectSummary, error)
}

// RecordLister lists a project's sync records.
type RecordLister interface {
	List(ctx context.Context, project string, opts record.ListOptions) ([]record.SyncRecord, error)
}

// Aggregator computes summaries. It never writes.
type Aggregator struct {
	projects ProjectReader
	records  RecordLister
}

// New creates an Aggregator.
func New(projects ProjectReader, records RecordLister) *Aggregator {
	return &Aggregator{projects: projects, records: records}
}

// Project summarises one project.
func (a *Aggregator) Project(ctx context.Context, name string) (*Summary, error) {
	p, err := a.projects.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	recs, err := a.records.List(ctx, name, record.ListOptions{})
	if err != nil {
		return nil, err
	}
	s := Summarize(name, recs, p.Scenarios)
	return &s, nil
}

// Overview summarises every project. Projects whose state cannot be read
// are listed with Corrupt set instead of failing the whole overview.
func (a *Aggregator) Overview(ctx context.Context) ([]Summary, error) {
	list, err := a.projects.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(list))
	for _, ps := range list {
		if ps.Corrupt {
			out = append(out, Summary{Project: ps.Name, Corrupt: true})
			continue
		}
		s, err := a.Project(ctx, ps.Name)
		if err != nil {
			if errors.Is(err, project.ErrProjectNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// Summarize folds records and scenario progress into a Summary.
func Summarize(name string, recs []record.SyncRecord, scenario *project.ScenarioProgress) Summary {
	s := Summary{Project: name, Scenario: scenario}
	issues := map[string]struct{}{}
	for _, r := range recs {
		switch r.Category {
		case record.CategoryBug:
			s.Counts.Bug++
		case record.CategoryDataError:
			s.Counts.DataError++
		case record.CategoryImprovement:
			s.Counts.Improvement++
		}
		s.Total++
		if r.Merged {
			s.Merged++
		}
		if r.IssueID != "" {
			issues[r.IssueID] = struct{}{}
		}
		if s.LastProcessedAt == nil || r.ProcessedAt.After(*s.LastProcessedAt) {
			at := r.ProcessedAt
			s.LastProcessedAt = &at
		}
	}
	s.Issues = len(issues)

	if scenario != nil {
		pct := 0.0
		if scenario.Total > 0 {
			pct = float64(scenario.Completed) / float64(scenario.Total) * 100
		}
		s.CompletionPercent = &pct
	}
	return s
}
