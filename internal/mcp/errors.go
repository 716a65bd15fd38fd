package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/qasync/internal/domain/lease"
	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/repository"
	"github.com/rpggio/qasync/internal/source"
	"github.com/rpggio/qasync/internal/statefile"
	"github.com/rpggio/qasync/internal/syncer"
	"github.com/rpggio/qasync/internal/tracker"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	err          error
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	mapped := func(code, hint string) *APIError {
		return &APIError{Code: code, Message: err.Error(), RecoveryHint: hint, err: err}
	}
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return mapped("PROJECT_NOT_FOUND", "Call list_projects for valid names")
	case errors.Is(err, project.ErrAlreadyExists):
		return mapped("ALREADY_EXISTS", "Pick another project name")
	case errors.Is(err, syncer.ErrNoChannel):
		return mapped("NO_CHANNEL", "Set the project's channel first")
	case errors.Is(err, project.ErrInvalidInput), errors.Is(err, record.ErrInvalidInput):
		return mapped("INVALID_INPUT", "Check the arguments")
	case errors.Is(err, lease.ErrLeaseHeld):
		return mapped("LEASE_HELD", "Another sync is running; retry after it finishes")
	case errors.Is(err, repository.ErrPersistenceCorruption):
		return mapped("STATE_CORRUPT", "Repair or restore the state file")
	case errors.Is(err, statefile.ErrLockTimeout), errors.Is(err, repository.ErrTransient), source.IsTransient(err), tracker.IsTransient(err):
		return mapped("TRANSIENT", "Retry later")
	default:
		return nil
	}
}

// toolError returns the mapped error when one exists.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
