package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
)

// RecordRepository implements record.Repository for SQLite. The
// (project, event_id) primary key makes Commit linearizable per event.
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Commit appends a sync record
func (r *RecordRepository) Commit(ctx context.Context, rec *record.SyncRecord) error {
	query := `
		INSERT INTO sync_records (
			project, event_id, issue_id, category, merged, comment_id, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.Project,
		rec.EventID,
		rec.IssueID,
		rec.Category,
		rec.Merged,
		rec.CommentID,
		rec.ProcessedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return wrapErr("commit sync record", err)
	}

	return nil
}

// Get retrieves the record for an event
func (r *RecordRepository) Get(ctx context.Context, projectName, eventID string) (*record.SyncRecord, error) {
	query := `
		SELECT project, event_id, issue_id, category, merged, comment_id, processed_at
		FROM sync_records
		WHERE project = ? AND event_id = ?
	`

	var rec record.SyncRecord
	err := r.db.QueryRowContext(ctx, query, projectName, eventID).Scan(
		&rec.Project,
		&rec.EventID,
		&rec.IssueID,
		&rec.Category,
		&rec.Merged,
		&rec.CommentID,
		&rec.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get sync record", err)
	}

	return &rec, nil
}

// Exists reports whether an event has a record
func (r *RecordRepository) Exists(ctx context.Context, projectName, eventID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM sync_records WHERE project = ? AND event_id = ?`,
		projectName, eventID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("check sync record", err)
	}
	return true, nil
}

// List returns a project's records in processing order
func (r *RecordRepository) List(ctx context.Context, projectName string, opts record.ListOptions) ([]record.SyncRecord, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE name = ?`, projectName).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("check project", err)
	}

	query := `
		SELECT project, event_id, issue_id, category, merged, comment_id, processed_at
		FROM sync_records
		WHERE project = ?
	`
	args := []interface{}{projectName}

	if opts.Category != nil {
		query += " AND category = ?"
		args = append(args, *opts.Category)
	}

	query += " ORDER BY processed_at ASC, event_id ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list sync records", err)
	}
	defer rows.Close()

	var recs []record.SyncRecord
	for rows.Next() {
		var rec record.SyncRecord
		if err := rows.Scan(
			&rec.Project,
			&rec.EventID,
			&rec.IssueID,
			&rec.Category,
			&rec.Merged,
			&rec.CommentID,
			&rec.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate sync records", err)
	}

	return recs, nil
}
