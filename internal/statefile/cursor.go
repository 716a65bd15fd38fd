package statefile

import (
	"context"
	"sort"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/repository"
)

// CursorRepository implements cursor.Repository on a state file
type CursorRepository struct {
	store *Store
}

// NewCursorRepository creates a new CursorRepository
func NewCursorRepository(store *Store) *CursorRepository {
	return &CursorRepository{store: store}
}

// Get retrieves a project channel cursor
func (r *CursorRepository) Get(ctx context.Context, projectName, channel string) (*cursor.Cursor, error) {
	var out *cursor.Cursor
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		cd, ok := p.Cursors[channel]
		if !ok {
			return repository.ErrNotFound
		}
		c := fromCursorDoc(projectName, channel, cd)
		out = &c
		return nil
	})
	return out, err
}

// Advance stores the later of the current and given positions
func (r *CursorRepository) Advance(ctx context.Context, c *cursor.Cursor) (*cursor.Cursor, error) {
	stored := *c
	err := r.store.update(ctx, func(doc *document) error {
		p, err := doc.childWrite(c.Project)
		if err != nil {
			return err
		}
		stored.Position = cursor.Max(p.Cursors[c.Channel].Position, c.Position)
		stored.PolledAt = c.PolledAt.UTC()
		p.Cursors[c.Channel] = cursorDoc{
			Position:        stored.Position,
			PolledAt:        stored.PolledAt,
			IntervalSeconds: stored.IntervalSeconds,
		}
		return doc.put(p)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// List returns all cursors of a project
func (r *CursorRepository) List(ctx context.Context, projectName string) ([]cursor.Cursor, error) {
	var cursors []cursor.Cursor
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		for channel, cd := range p.Cursors {
			cursors = append(cursors, fromCursorDoc(projectName, channel, cd))
		}
		return nil
	})
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].Channel < cursors[j].Channel })
	return cursors, err
}

func fromCursorDoc(projectName, channel string, cd cursorDoc) cursor.Cursor {
	return cursor.Cursor{
		Project:         projectName,
		Channel:         channel,
		Position:        cd.Position,
		PolledAt:        cd.PolledAt,
		IntervalSeconds: cd.IntervalSeconds,
	}
}
