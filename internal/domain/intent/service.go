package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/repository"
)

// ErrInvalidInput indicates invalid intent input.
var ErrInvalidInput = errors.New("invalid intent input")

// Service manages the write-ahead intent log.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new intent service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record notes that an issue is about to be created for the event.
func (s *Service) Record(ctx context.Context, projectName, eventID, title string) error {
	if strings.TrimSpace(projectName) == "" || strings.TrimSpace(eventID) == "" {
		return ErrInvalidInput
	}
	err := s.repo.Record(ctx, &Intent{
		Project:   projectName,
		EventID:   eventID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForeignKeyViolation) {
			return project.ErrProjectNotFound
		}
		return fmt.Errorf("recording intent: %w", err)
	}
	return nil
}

// Resolve clears the intent once the event is committed.
func (s *Service) Resolve(ctx context.Context, projectName, eventID string) error {
	if err := s.repo.Resolve(ctx, projectName, eventID); err != nil {
		return fmt.Errorf("resolving intent: %w", err)
	}
	return nil
}

// Pending returns the open intent for an event, or nil.
func (s *Service) Pending(ctx context.Context, projectName, eventID string) (*Intent, error) {
	in, err := s.repo.Get(ctx, projectName, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting intent: %w", err)
	}
	return in, nil
}

// List returns every open intent for a project.
func (s *Service) List(ctx context.Context, projectName string) ([]Intent, error) {
	list, err := s.repo.List(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("listing intents: %w", err)
	}
	return list, nil
}
