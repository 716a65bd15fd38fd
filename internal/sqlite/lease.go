package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/repository"
)

// LeaseRepository implements lease.Repository for SQLite
type LeaseRepository struct {
	db *DB
}

// NewLeaseRepository creates a new LeaseRepository
func NewLeaseRepository(db *DB) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// Acquire takes or renews a lease in a single conditional upsert
func (r *LeaseRepository) Acquire(ctx context.Context, l *lease.Lease, now time.Time) error {
	query := `
		INSERT INTO leases (project, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			acquired_at = CASE WHEN leases.holder = excluded.holder
				THEN leases.acquired_at ELSE excluded.acquired_at END,
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at <= ?
	`

	result, err := r.db.ExecContext(ctx, query,
		l.Project,
		l.Holder,
		l.AcquiredAt.UTC(),
		l.ExpiresAt.UTC(),
		now.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return wrapErr("acquire lease", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("get rows affected", err)
	}
	if rowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

// Release deletes the lease if holder owns it
func (r *LeaseRepository) Release(ctx context.Context, projectName, holder string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM leases WHERE project = ? AND holder = ?`,
		projectName, holder,
	)
	if err != nil {
		return wrapErr("release lease", err)
	}
	return requireAffected(result)
}

// Get returns the stored lease, expired or not
func (r *LeaseRepository) Get(ctx context.Context, projectName string) (*lease.Lease, error) {
	var l lease.Lease
	err := r.db.QueryRowContext(ctx,
		`SELECT project, holder, acquired_at, expires_at FROM leases WHERE project = ?`,
		projectName,
	).Scan(&l.Project, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get lease", err)
	}
	return &l, nil
}
