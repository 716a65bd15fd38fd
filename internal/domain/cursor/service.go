package cursor

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

// Service handles watch cursor operations.
type Service struct {
	repo       Repository
	activities ActivityRepository
	logger     *slog.Logger
}

// NewService creates a new cursor service.
func NewService(repo Repository, activities ActivityRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, activities: activities, logger: logger}
}

// Get returns the cursor for a project channel, or a zero cursor if the
// channel was never polled.
func (s *Service) Get(ctx context.Context, projectName, channel string) (*Cursor, error) {
	c, err := s.repo.Get(ctx, projectName, channel)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Cursor{Project: projectName, Channel: channel}, nil
		}
		return nil, fmt.Errorf("getting cursor: %w", err)
	}
	return c, nil
}

// List returns all cursors for a project.
func (s *Service) List(ctx context.Context, projectName string) ([]Cursor, error) {
	cursors, err := s.repo.List(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("listing cursors: %w", err)
	}
	return cursors, nil
}

// Advance records a completed poll. The stored position never moves
// backwards; a lower position only refreshes the poll time.
func (s *Service) Advance(ctx context.Context, projectName, channel, position string, interval time.Duration) (*Cursor, error) {
	if strings.TrimSpace(projectName) == "" || strings.TrimSpace(channel) == "" {
		return nil, ErrInvalidInput
	}

	var previous string
	if prior, err := s.repo.Get(ctx, projectName, channel); err == nil {
		previous = prior.Position
	}

	stored, err := s.repo.Advance(ctx, &Cursor{
		Project:         projectName,
		Channel:         channel,
		Position:        position,
		PolledAt:        time.Now().UTC(),
		IntervalSeconds: int(interval / time.Second),
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("advancing cursor: %w", err)
	}

	if stored.Position != previous && s.activities != nil {
		activity.Log(ctx, s.activities, s.logger, &activity.ActivityEntry{
			Project:      projectName,
			ActivityType: activity.TypeCursorAdvanced,
			Summary:      fmt.Sprintf("cursor %s at %s", channel, stored.Position),
		})
	}
	return stored, nil
}
