package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/repository"
)

// Service handles project operations.
type Service struct {
	repo       Repository
	activities ActivityRepository
	logger     *slog.Logger
}

// NewService creates a new project service.
func NewService(repo Repository, activities ActivityRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, activities: activities, logger: logger}
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	Name   string
	Config Config
}

// ReconfigureRequest updates selected config fields; nil fields are kept.
type ReconfigureRequest struct {
	Name                string
	SiteURL             *string
	PRDRef              *string
	Channel             *string
	Thread              *string
	TrackerProjectID    *string
	TrackerProjectURL   *string
	PollIntervalSeconds *int
}

// Create creates a new project. Existing names fail with ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := ValidateConfig(req.Config); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	proj := &Project{
		Name:      req.Name,
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.logActivity(ctx, proj.Name, activity.TypeProjectCreated, fmt.Sprintf("created project %s", proj.Name))
	return proj, nil
}

// Get fetches a project by name.
func (s *Service) Get(ctx context.Context, name string) (*Project, error) {
	proj, err := s.repo.Get(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns project summaries sorted by name.
func (s *Service) List(ctx context.Context) ([]ProjectSummary, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return list, nil
}

// Reconfigure applies a partial config update to an existing project.
func (s *Service) Reconfigure(ctx context.Context, req ReconfigureRequest) (*Project, error) {
	proj, err := s.Get(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	cfg := proj.Config
	setString(&cfg.SiteURL, req.SiteURL)
	setString(&cfg.PRDRef, req.PRDRef)
	setString(&cfg.Channel, req.Channel)
	setString(&cfg.Thread, req.Thread)
	setString(&cfg.TrackerProjectID, req.TrackerProjectID)
	setString(&cfg.TrackerProjectURL, req.TrackerProjectURL)
	if req.PollIntervalSeconds != nil {
		cfg.PollIntervalSeconds = *req.PollIntervalSeconds
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateConfig(ctx, proj.Name, cfg, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("updating project config: %w", err)
	}
	proj.Config = cfg
	proj.UpdatedAt = now

	s.logActivity(ctx, proj.Name, activity.TypeProjectReconfigured, "updated project config")
	return proj, nil
}

// SetScenarioProgress stores the scenario checklist counts for a project.
func (s *Service) SetScenarioProgress(ctx context.Context, name string, progress ScenarioProgress) (*Project, error) {
	if progress.Total < 0 || progress.Completed < 0 || progress.Completed > progress.Total {
		return nil, ErrInvalidInput
	}

	now := time.Now().UTC()
	if err := s.repo.SetScenarioProgress(ctx, name, progress, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("setting scenario progress: %w", err)
	}

	s.logActivity(ctx, name, activity.TypeScenarioProgress,
		fmt.Sprintf("scenarios %d/%d completed", progress.Completed, progress.Total))
	return s.Get(ctx, name)
}

func (s *Service) logActivity(ctx context.Context, name string, typ activity.ActivityType, summary string) {
	if s.activities == nil {
		return
	}
	activity.Log(ctx, s.activities, s.logger, &activity.ActivityEntry{
		Project:      name,
		ActivityType: typ,
		Summary:      summary,
	})
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
