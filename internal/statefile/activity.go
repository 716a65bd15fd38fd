package statefile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/repository"
)

// ActivityRepository implements activity.Repository on a state file. Each
// project keeps its newest MaxActivity entries.
type ActivityRepository struct {
	store *Store
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(store *Store) *ActivityRepository {
	return &ActivityRepository{store: store}
}

// Log appends an activity entry to its project
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.project(entry.Project)
		if err != nil {
			return err
		}
		var id int64 = 1
		if n := len(p.Activity); n > 0 {
			id = p.Activity[n-1].ID + 1
		}
		p.Activity = append(p.Activity, activityDoc{
			ID:        id,
			EventID:   entry.EventID,
			Type:      string(entry.ActivityType),
			Summary:   entry.Summary,
			Details:   entry.Details,
			CreatedAt: createdAt,
		})
		if over := len(p.Activity) - MaxActivity; over > 0 {
			p.Activity = append([]activityDoc(nil), p.Activity[over:]...)
		}
		if err := doc.put(p); err != nil {
			return err
		}
		entry.ID = id
		entry.CreatedAt = createdAt
		return nil
	})
}

// List returns matching entries, newest first. Without a project filter it
// reads every decodable project.
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	var entries []activity.ActivityEntry
	err := r.store.view(ctx, func(doc *document) error {
		names := []string{opts.Project}
		if opts.Project == "" {
			names = names[:0]
			for name := range doc.Projects {
				names = append(names, name)
			}
		}
		for _, name := range names {
			p, err := doc.project(name)
			if opts.Project == "" && errors.Is(err, repository.ErrPersistenceCorruption) {
				continue
			}
			if err != nil {
				return err
			}
			for _, a := range p.Activity {
				if opts.EventID != nil && (a.EventID == nil || *a.EventID != *opts.EventID) {
					continue
				}
				if opts.ActivityType != nil && a.Type != string(*opts.ActivityType) {
					continue
				}
				entries = append(entries, activity.ActivityEntry{
					ID:           a.ID,
					Project:      name,
					EventID:      a.EventID,
					ActivityType: activity.ActivityType(a.Type),
					Summary:      a.Summary,
					Details:      a.Details,
					CreatedAt:    a.CreatedAt,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		if entries[i].Project != entries[j].Project {
			return entries[i].Project < entries[j].Project
		}
		return entries[i].ID > entries[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}
