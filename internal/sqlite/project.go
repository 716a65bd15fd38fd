package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/repository"
)

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (
			name, site_url, prd_ref, channel, thread,
			tracker_project_id, tracker_project_url, poll_interval_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.Name,
		proj.Config.SiteURL,
		proj.Config.PRDRef,
		proj.Config.Channel,
		proj.Config.Thread,
		proj.Config.TrackerProjectID,
		proj.Config.TrackerProjectURL,
		proj.Config.PollIntervalSeconds,
		proj.CreatedAt.UTC(),
		proj.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return wrapErr("create project", err)
	}

	return nil
}

// Get retrieves a project by name
func (r *ProjectRepository) Get(ctx context.Context, name string) (*project.Project, error) {
	query := `
		SELECT
			name, site_url, prd_ref, channel, thread,
			tracker_project_id, tracker_project_url, poll_interval_seconds,
			scenario_total, scenario_completed, created_at, updated_at
		FROM projects
		WHERE name = ?
	`

	var proj project.Project
	var total, completed sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&proj.Name,
		&proj.Config.SiteURL,
		&proj.Config.PRDRef,
		&proj.Config.Channel,
		&proj.Config.Thread,
		&proj.Config.TrackerProjectID,
		&proj.Config.TrackerProjectURL,
		&proj.Config.PollIntervalSeconds,
		&total,
		&completed,
		&proj.CreatedAt,
		&proj.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get project", err)
	}

	if total.Valid {
		proj.Scenarios = &project.ScenarioProgress{Total: int(total.Int64), Completed: int(completed.Int64)}
	}

	return &proj, nil
}

// List returns all projects with their record counts
func (r *ProjectRepository) List(ctx context.Context) ([]project.ProjectSummary, error) {
	query := `
		SELECT
			p.name,
			p.channel,
			p.thread,
			p.created_at,
			COUNT(s.event_id) as record_count
		FROM projects p
		LEFT JOIN sync_records s ON s.project = p.name
		GROUP BY p.name, p.channel, p.thread, p.created_at
		ORDER BY p.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("list projects", err)
	}
	defer rows.Close()

	var summaries []project.ProjectSummary
	for rows.Next() {
		var summary project.ProjectSummary
		err := rows.Scan(
			&summary.Name,
			&summary.Channel,
			&summary.Thread,
			&summary.CreatedAt,
			&summary.RecordCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate project rows", err)
	}

	return summaries, nil
}

// UpdateConfig replaces a project's config
func (r *ProjectRepository) UpdateConfig(ctx context.Context, name string, cfg project.Config, updatedAt time.Time) error {
	query := `
		UPDATE projects
		SET site_url = ?, prd_ref = ?, channel = ?, thread = ?,
		    tracker_project_id = ?, tracker_project_url = ?,
		    poll_interval_seconds = ?, updated_at = ?
		WHERE name = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		cfg.SiteURL,
		cfg.PRDRef,
		cfg.Channel,
		cfg.Thread,
		cfg.TrackerProjectID,
		cfg.TrackerProjectURL,
		cfg.PollIntervalSeconds,
		updatedAt.UTC(),
		name,
	)
	if err != nil {
		return wrapErr("update project config", err)
	}
	return requireAffected(result)
}

// SetScenarioProgress stores scenario counts for a project
func (r *ProjectRepository) SetScenarioProgress(ctx context.Context, name string, progress project.ScenarioProgress, updatedAt time.Time) error {
	query := `
		UPDATE projects
		SET scenario_total = ?, scenario_completed = ?, updated_at = ?
		WHERE name = ?
	`

	result, err := r.db.ExecContext(ctx, query, progress.Total, progress.Completed, updatedAt.UTC(), name)
	if err != nil {
		return wrapErr("set scenario progress", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
