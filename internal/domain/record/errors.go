package record

import (
	"errors"

	"github.com/rpggio/qasync/internal/domain/project"
)

var (
	// ErrRecordNotFound indicates no record exists for the event.
	ErrRecordNotFound = errors.New("sync record not found")
	// ErrDuplicateEvent indicates the event already has a record in the project.
	ErrDuplicateEvent = errors.New("event already synced")
	// ErrInvalidInput indicates invalid input for record operations.
	ErrInvalidInput = errors.New("invalid sync record input")
	// ErrProjectNotFound indicates the record's project doesn't exist.
	ErrProjectNotFound = project.ErrProjectNotFound
)
