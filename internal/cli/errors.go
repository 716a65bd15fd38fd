package cli

import (
	"errors"
	"fmt"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/statefile"
	"github.com/rpggio/qasync/internal/tracker"
)

// Exit codes for CLI commands.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitNotFound      = 3
	ExitAlreadyExists = 4
	ExitTransient     = 5
	ExitCorruption    = 6
	ExitLeaseHeld     = 7
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to its exit code. Explicit ExitErrors win;
// otherwise domain sentinels decide, and anything else is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case errors.Is(err, project.ErrProjectNotFound), errors.Is(err, record.ErrRecordNotFound):
		return ExitNotFound
	case errors.Is(err, project.ErrAlreadyExists):
		return ExitAlreadyExists
	case errors.Is(err, repository.ErrPersistenceCorruption):
		return ExitCorruption
	case errors.Is(err, lease.ErrLeaseHeld):
		return ExitLeaseHeld
	case source.IsTransient(err), tracker.IsTransient(err), errors.Is(err, repository.ErrTransient), errors.Is(err, statefile.ErrLockTimeout):
		return ExitTransient
	case errors.Is(err, project.ErrInvalidInput), errors.Is(err, record.ErrInvalidInput),
		errors.Is(err, cursor.ErrInvalidInput), errors.Is(err, lease.ErrInvalidInput):
		return ExitUsage
	}
	return ExitFailure
}

// errorCode is the stable code reported in JSON error output.
func errorCode(code int) string {
	switch code {
	case ExitUsage:
		return "usage"
	case ExitNotFound:
		return "not_found"
	case ExitAlreadyExists:
		return "already_exists"
	case ExitTransient:
		return "transient"
	case ExitCorruption:
		return "corruption"
	case ExitLeaseHeld:
		return "lease_held"
	}
	return "failure"
}
