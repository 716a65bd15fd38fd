package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/repository"
)

// IntentRepository implements intent.Repository for SQLite
type IntentRepository struct {
	db *DB
}

// NewIntentRepository creates a new IntentRepository
func NewIntentRepository(db *DB) *IntentRepository {
	return &IntentRepository{db: db}
}

// Record upserts an intent
func (r *IntentRepository) Record(ctx context.Context, in *intent.Intent) error {
	query := `
		INSERT INTO intents (project, event_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project, event_id) DO UPDATE SET
			title = excluded.title,
			created_at = excluded.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, in.Project, in.EventID, in.Title, in.CreatedAt.UTC()); err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return wrapErr("record intent", err)
	}
	return nil
}

// Resolve deletes an intent
func (r *IntentRepository) Resolve(ctx context.Context, projectName, eventID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM intents WHERE project = ? AND event_id = ?`,
		projectName, eventID,
	); err != nil {
		return wrapErr("resolve intent", err)
	}
	return nil
}

// Get retrieves an intent
func (r *IntentRepository) Get(ctx context.Context, projectName, eventID string) (*intent.Intent, error) {
	var in intent.Intent
	err := r.db.QueryRowContext(ctx,
		`SELECT project, event_id, title, created_at FROM intents WHERE project = ? AND event_id = ?`,
		projectName, eventID,
	).Scan(&in.Project, &in.EventID, &in.Title, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get intent", err)
	}
	return &in, nil
}

// List returns a project's open intents, oldest first
func (r *IntentRepository) List(ctx context.Context, projectName string) ([]intent.Intent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project, event_id, title, created_at
		FROM intents
		WHERE project = ?
		ORDER BY created_at ASC, event_id ASC
	`, projectName)
	if err != nil {
		return nil, wrapErr("list intents", err)
	}
	defer rows.Close()

	var list []intent.Intent
	for rows.Next() {
		var in intent.Intent
		if err := rows.Scan(&in.Project, &in.EventID, &in.Title, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		list = append(list, in)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate intents", err)
	}
	return list, nil
}
