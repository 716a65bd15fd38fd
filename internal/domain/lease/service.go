package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/repository"
)

// Service handles per-project writer leases.
type Service struct {
	repo       Repository
	activities ActivityRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new lease service.
func NewService(repo Repository, activities ActivityRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, activities: activities, logger: logger, now: time.Now}
}

// WithClock replaces the service time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Acquire takes the project lease for holder, or renews it if holder already
// has it. Another active holder yields ErrLeaseHeld.
func (s *Service) Acquire(ctx context.Context, projectName, holder string, ttl time.Duration) (*Lease, error) {
	l, err := s.take(ctx, projectName, holder, ttl)
	if err != nil {
		return nil, err
	}
	if s.activities != nil {
		activity.Log(ctx, s.activities, s.logger, &activity.ActivityEntry{
			Project:      projectName,
			ActivityType: activity.TypeLeaseAcquired,
			Summary:      fmt.Sprintf("lease acquired by %s", holder),
		})
	}
	return l, nil
}

// Renew extends a lease holder already owns. It fails like Acquire when
// another holder took over after expiry.
func (s *Service) Renew(ctx context.Context, projectName, holder string, ttl time.Duration) (*Lease, error) {
	return s.take(ctx, projectName, holder, ttl)
}

func (s *Service) take(ctx context.Context, projectName, holder string, ttl time.Duration) (*Lease, error) {
	if strings.TrimSpace(projectName) == "" || strings.TrimSpace(holder) == "" || ttl <= 0 {
		return nil, ErrInvalidInput
	}

	now := s.now().UTC()
	l := &Lease{
		Project:    projectName,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.repo.Acquire(ctx, l, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			current, getErr := s.repo.Get(ctx, projectName)
			if getErr == nil {
				return nil, fmt.Errorf("%w: %s until %s", ErrLeaseHeld, current.Holder, current.ExpiresAt.Format(time.RFC3339))
			}
			return nil, ErrLeaseHeld
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForeignKeyViolation):
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("acquiring lease: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("lease taken", "project", projectName, "holder", holder, "expires_at", l.ExpiresAt)
	}
	return l, nil
}

// Release gives up the lease if holder still owns it.
func (s *Service) Release(ctx context.Context, projectName, holder string) error {
	if err := s.repo.Release(ctx, projectName, holder); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("releasing lease: %w", err)
	}
	if s.activities != nil {
		activity.Log(ctx, s.activities, s.logger, &activity.ActivityEntry{
			Project:      projectName,
			ActivityType: activity.TypeLeaseReleased,
			Summary:      fmt.Sprintf("lease released by %s", holder),
		})
	}
	return nil
}

// Current returns the project's lease if one is active.
func (s *Service) Current(ctx context.Context, projectName string) (*Lease, error) {
	l, err := s.repo.Get(ctx, projectName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lease: %w", err)
	}
	if !l.Active(s.now()) {
		return nil, nil
	}
	return l, nil
}
