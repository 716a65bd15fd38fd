// Package storage opens the configured state backend and exposes its
// repositories behind the domain interfaces.
package storage

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/intent"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/sqlite"
	"github.com/rpggio/qasync/internal/statefile"
)

// Backend kinds.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Options selects and locates a backend.
type Options struct {
	Kind   string
	Path   string
	Logger *slog.Logger
}

// Backend bundles the repositories of one state store.
type Backend struct {
	Kind     string
	Path     string
	Projects project.Repository
	Records  record.Repository
	Cursors  cursor.Repository
	Leases   lease.Repository
	Intents  intent.Repository
	Activity activity.Repository

	closer io.Closer
}

// Open opens the backend described by opts.
func Open(opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Kind {
	case KindFile, "json", "":
		store, err := statefile.Open(opts.Path, statefile.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Backend{
			Kind:     KindFile,
			Path:     opts.Path,
			Projects: statefile.NewProjectRepository(store),
			Records:  statefile.NewRecordRepository(store),
			Cursors:  statefile.NewCursorRepository(store),
			Leases:   statefile.NewLeaseRepository(store),
			Intents:  statefile.NewIntentRepository(store),
			Activity: statefile.NewActivityRepository(store),
			closer:   store,
		}, nil
	case KindSQLite:
		db, err := sqlite.Open(opts.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLite(db, opts.Path), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Kind)
	}
}

// NewSQLite wraps an already open database.
func NewSQLite(db *sqlite.DB, path string) *Backend {
	return &Backend{
		Kind:     KindSQLite,
		Path:     path,
		Projects: sqlite.NewProjectRepository(db),
		Records:  sqlite.NewRecordRepository(db),
		Cursors:  sqlite.NewCursorRepository(db),
		Leases:   sqlite.NewLeaseRepository(db),
		Intents:  sqlite.NewIntentRepository(db),
		Activity: sqlite.NewActivityRepository(db),
		closer:   db,
	}
}

// Close releases the backend.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
