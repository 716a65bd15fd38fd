package sqlite

import (
	"fmt"
	"strings"

	"github.com/rpggio/qasync/internal/repository"
)

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "unable to open database file")
}

// wrapErr wraps a driver error, tagging corruption and transient failures
// so callers can tell them apart.
func wrapErr(action string, err error) error {
	switch {
	case isCorruption(err):
		return fmt.Errorf("failed to %s: %w: %v", action, repository.ErrPersistenceCorruption, err)
	case isTransient(err):
		return fmt.Errorf("failed to %s: %w: %w", action, repository.ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
