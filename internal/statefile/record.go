package statefile

import (
	"context"
	"sort"

	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
)

// RecordRepository implements record.Repository on a state file. The file
// lock serializes Commit, so the duplicate check and the insert are atomic
// across processes.
type RecordRepository struct {
	store *Store
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(store *Store) *RecordRepository {
	return &RecordRepository{store: store}
}

// Commit appends a sync record. The record supersedes any pending intent
// for the event, which is cleared in the same write.
func (r *RecordRepository) Commit(ctx context.Context, rec *record.SyncRecord) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.childWrite(rec.Project)
		if err != nil {
			return err
		}
		if _, ok := p.SyncRecords[rec.EventID]; ok {
			return repository.ErrDuplicate
		}
		p.SyncRecords[rec.EventID] = recordDoc{
			IssueID:     rec.IssueID,
			Category:    string(rec.Category),
			Merged:      rec.Merged,
			CommentID:   rec.CommentID,
			ProcessedAt: rec.ProcessedAt.UTC(),
		}
		delete(p.Intents, rec.EventID)
		return doc.put(p)
	})
}

// Get retrieves the record for an event
func (r *RecordRepository) Get(ctx context.Context, projectName, eventID string) (*record.SyncRecord, error) {
	var out *record.SyncRecord
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		rd, ok := p.SyncRecords[eventID]
		if !ok {
			return repository.ErrNotFound
		}
		rec := fromRecordDoc(projectName, eventID, rd)
		out = &rec
		return nil
	})
	return out, err
}

// Exists reports whether an event has a record
func (r *RecordRepository) Exists(ctx context.Context, projectName, eventID string) (bool, error) {
	var ok bool
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		_, ok = p.SyncRecords[eventID]
		return nil
	})
	return ok, err
}

// List returns a project's records in processing order
func (r *RecordRepository) List(ctx context.Context, projectName string, opts record.ListOptions) ([]record.SyncRecord, error) {
	var recs []record.SyncRecord
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(projectName)
		if err != nil {
			return err
		}
		for eventID, rd := range p.SyncRecords {
			if opts.Category != nil && rd.Category != string(*opts.Category) {
				continue
			}
			recs = append(recs, fromRecordDoc(projectName, eventID, rd))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].ProcessedAt.Equal(recs[j].ProcessedAt) {
			return recs[i].ProcessedAt.Before(recs[j].ProcessedAt)
		}
		return recs[i].EventID < recs[j].EventID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func fromRecordDoc(projectName, eventID string, rd recordDoc) record.SyncRecord {
	return record.SyncRecord{
		Project:     projectName,
		EventID:     eventID,
		IssueID:     rd.IssueID,
		Category:    record.Category(rd.Category),
		Merged:      rd.Merged,
		CommentID:   rd.CommentID,
		ProcessedAt: rd.ProcessedAt,
	}
}
