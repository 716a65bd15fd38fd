package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/repository"
)

// Service handles sync record business logic.
type Service struct {
	records    Repository
	activities ActivityRepository
	logger     *slog.Logger
}

// NewService creates a new record service.
func NewService(records Repository, activities ActivityRepository, logger *slog.Logger) *Service {
	return &Service{records: records, activities: activities, logger: logger}
}

// CommitRequest describes a record to append.
type CommitRequest struct {
	Project   string
	EventID   string
	IssueID   string
	Category  Category
	Merged    bool
	CommentID string
	// Adopted marks an issue found through the intent log after an
	// interrupted run.
	Adopted bool
}

// Commit appends a record produced by a sync run. A record that already
// exists for the event fails with ErrDuplicateEvent.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*SyncRecord, error) {
	typ := activity.TypeEventSynced
	switch {
	case req.Adopted:
		typ = activity.TypeEventAdopted
	case req.Merged:
		typ = activity.TypeEventMerged
	}
	return s.commit(ctx, req, typ)
}

// MarkSynced appends a record for an event handled outside a sync run.
func (s *Service) MarkSynced(ctx context.Context, req CommitRequest) (*SyncRecord, error) {
	return s.commit(ctx, req, activity.TypeMarkedSynced)
}

func (s *Service) commit(ctx context.Context, req CommitRequest, typ activity.ActivityType) (*SyncRecord, error) {
	if err := ValidateCommitInput(req); err != nil {
		return nil, err
	}

	rec := &SyncRecord{
		Project:     req.Project,
		EventID:     req.EventID,
		IssueID:     req.IssueID,
		Category:    req.Category,
		Merged:      req.Merged,
		CommentID:   req.CommentID,
		ProcessedAt: time.Now().UTC(),
	}

	if err := s.records.Commit(ctx, rec); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrDuplicateEvent
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForeignKeyViolation):
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("committing sync record: %w", err)
	}

	if s.activities != nil {
		eventID := rec.EventID
		activity.Log(ctx, s.activities, s.logger, &activity.ActivityEntry{
			Project:      rec.Project,
			EventID:      &eventID,
			ActivityType: typ,
			Summary:      fmt.Sprintf("%s -> %s (%s)", rec.EventID, rec.IssueID, rec.Category),
		})
	}

	return rec, nil
}

// IsSynced reports whether the event already has a record.
func (s *Service) IsSynced(ctx context.Context, project, eventID string) (bool, error) {
	ok, err := s.records.Exists(ctx, project, eventID)
	if err != nil {
		return false, fmt.Errorf("checking sync record: %w", err)
	}
	return ok, nil
}

// Get fetches the record for an event.
func (s *Service) Get(ctx context.Context, project, eventID string) (*SyncRecord, error) {
	rec, err := s.records.Get(ctx, project, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting sync record: %w", err)
	}
	return rec, nil
}

// List returns a project's records ordered by processing time.
func (s *Service) List(ctx context.Context, project string, opts ListOptions) ([]SyncRecord, error) {
	recs, err := s.records.List(ctx, project, opts)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("listing sync records: %w", err)
	}
	return recs, nil
}
