package statefile

import (
	"context"
	"time"

	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/repository"
)

// LeaseRepository implements lease.Repository on a state file
type LeaseRepository struct {
	store *Store
}

// NewLeaseRepository creates a new LeaseRepository
func NewLeaseRepository(store *Store) *LeaseRepository {
	return &LeaseRepository{store: store}
}

// Acquire takes or renews a lease
func (r *LeaseRepository) Acquire(ctx context.Context, l *lease.Lease, now time.Time) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.childWrite(l.Project)
		if err != nil {
			return err
		}
		acquiredAt := l.AcquiredAt.UTC()
		if cur := p.Lease; cur != nil {
			switch {
			case cur.Holder == l.Holder:
				acquiredAt = cur.AcquiredAt
			case now.Before(cur.ExpiresAt):
				return repository.ErrConflict
			}
		}
		p.Lease = &leaseDoc{Holder: l.Holder, AcquiredAt: acquiredAt, ExpiresAt: l.ExpiresAt.UTC()}
		return doc.put(p)
	})
}

// Release drops the lease if holder owns it
func (r *LeaseRepository) Release(ctx context.Context, projectName, holder string) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		if p.Lease == nil || p.Lease.Holder != holder {
			return repository.ErrNotFound
		}
		p.Lease = nil
		return doc.put(p)
	})
}

// Get returns the stored lease, expired or not
func (r *LeaseRepository) Get(ctx context.Context, projectName string) (*lease.Lease, error) {
	var out *lease.Lease
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		if p.Lease == nil {
			return repository.ErrNotFound
		}
		out = &lease.Lease{
			Project:    projectName,
			Holder:     p.Lease.Holder,
			AcquiredAt: p.Lease.AcquiredAt,
			ExpiresAt:  p.Lease.ExpiresAt,
		}
		return nil
	})
	return out, err
}
