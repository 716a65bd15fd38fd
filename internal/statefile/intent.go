package statefile

import (
	"context"
	"sort"

	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/repository"
)

// IntentRepository implements intent.Repository on a state file
type IntentRepository struct {
	store *Store
}

// NewIntentRepository creates a new IntentRepository
func NewIntentRepository(store *Store) *IntentRepository {
	return &IntentRepository{store: store}
}

// Record upserts an intent
func (r *IntentRepository) Record(ctx context.Context, in *intent.Intent) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.childWrite(in.Project)
		if err != nil {
			return err
		}
		p.Intents[in.EventID] = intentDoc{Title: in.Title, CreatedAt: in.CreatedAt.UTC()}
		return doc.put(p)
	})
}

// Resolve deletes an intent
func (r *IntentRepository) Resolve(ctx context.Context, projectName, eventID string) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		if _, ok := p.Intents[eventID]; !ok {
			return nil
		}
		delete(p.Intents, eventID)
		return doc.put(p)
	})
}

// Get retrieves an intent
func (r *IntentRepository) Get(ctx context.Context, projectName, eventID string) (*intent.Intent, error) {
	var out *intent.Intent
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		id, ok := p.Intents[eventID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &intent.Intent{Project: projectName, EventID: eventID, Title: id.Title, CreatedAt: id.CreatedAt}
		return nil
	})
	return out, err
}

// List returns a project's open intents, oldest first
func (r *IntentRepository) List(ctx context.Context, projectName string) ([]intent.Intent, error) {
	var list []intent.Intent
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		for eventID, id := range p.Intents {
			list = append(list, intent.Intent{Project: projectName, EventID: eventID, Title: id.Title, CreatedAt: id.CreatedAt})
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].EventID < list[j].EventID
	})
	return list, err
}
