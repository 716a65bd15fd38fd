package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/repository"
)

// CursorRepository implements cursor.Repository for SQLite
type CursorRepository struct {
	db *DB
}

// NewCursorRepository creates a new CursorRepository
func NewCursorRepository(db *DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get retrieves a project channel cursor
func (r *CursorRepository) Get(ctx context.Context, projectName, channel string) (*cursor.Cursor, error) {
	query := `
		SELECT project, channel, position, polled_at, interval_seconds
		FROM cursors
		WHERE project = ? AND channel = ?
	`

	var c cursor.Cursor
	err := r.db.QueryRowContext(ctx, query, projectName, channel).Scan(
		&c.Project,
		&c.Channel,
		&c.Position,
		&c.PolledAt,
		&c.IntervalSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get cursor", err)
	}
	return &c, nil
}

// Advance stores the later of the current and given positions
func (r *CursorRepository) Advance(ctx context.Context, c *cursor.Cursor) (*cursor.Cursor, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM cursors WHERE project = ? AND channel = ?`,
		c.Project, c.Channel,
	).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return nil, wrapErr("read cursor", err)
	}

	stored := *c
	stored.Position = cursor.Max(current, c.Position)
	stored.PolledAt = c.PolledAt.UTC()

	upsert := `
		INSERT INTO cursors (project, channel, position, polled_at, interval_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project, channel) DO UPDATE SET
			position = excluded.position,
			polled_at = excluded.polled_at,
			interval_seconds = excluded.interval_seconds
	`
	if _, err := tx.ExecContext(ctx, upsert,
		stored.Project,
		stored.Channel,
		stored.Position,
		stored.PolledAt,
		stored.IntervalSeconds,
	); err != nil {
		if isForeignKeyViolation(err) {
			return nil, repository.ErrForeignKeyViolation
		}
		return nil, wrapErr("advance cursor", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &stored, nil
}

// List returns all cursors of a project
func (r *CursorRepository) List(ctx context.Context, projectName string) ([]cursor.Cursor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project, channel, position, polled_at, interval_seconds
		FROM cursors
		WHERE project = ?
		ORDER BY channel ASC
	`, projectName)
	if err != nil {
		return nil, wrapErr("list cursors", err)
	}
	defer rows.Close()

	var cursors []cursor.Cursor
	for rows.Next() {
		var c cursor.Cursor
		if err := rows.Scan(&c.Project, &c.Channel, &c.Position, &c.PolledAt, &c.IntervalSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan cursor: %w", err)
		}
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate cursors", err)
	}
	return cursors, nil
}
