package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrInvalidInput indicates an activity entry is missing required fields.
var ErrInvalidInput = errors.New("invalid activity input")

// Service handles activity log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// LogActivity logs an activity entry with the current timestamp if missing.
func (s *Service) LogActivity(ctx context.Context, entry *ActivityEntry) error {
	if entry == nil || strings.TrimSpace(entry.Project) == "" || entry.ActivityType == "" {
		return ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

// GetRecentActivity lists activity entries with filtering, newest first.
func (s *Service) GetRecentActivity(ctx context.Context, opts ListActivityOptions) ([]ActivityEntry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return s.repo.List(ctx, opts)
}

// Log records an entry and drops the error after logging it. Activity is an
// audit trail; failing to write it never fails the operation being audited.
func Log(ctx context.Context, repo Repository, logger *slog.Logger, entry *ActivityEntry) {
	if repo == nil || entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := repo.Log(ctx, entry); err != nil && logger != nil {
		logger.Warn("activity log write failed", "project", entry.Project, "type", entry.ActivityType, "error", err)
	}
}
