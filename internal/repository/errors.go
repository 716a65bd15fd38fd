package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write loses against a concurrent holder
	ErrConflict = errors.New("conflict: entity is held by another writer")

	// ErrDuplicate is returned when a unique key already exists
	ErrDuplicate = errors.New("duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistenceCorruption is returned when stored state can't be decoded.
	// It is scoped to the entity that failed; other entities stay readable.
	ErrPersistenceCorruption = errors.New("persistence corruption")

	// ErrTransient is returned when storage I/O fails in a way a later
	// attempt may not: busy or locked databases, failed reads and writes.
	ErrTransient = errors.New("transient storage error")
)
