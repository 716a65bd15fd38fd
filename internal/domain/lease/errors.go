package lease

import "errors"

var (
	// ErrLeaseHeld indicates another writer holds the project lease.
	ErrLeaseHeld = errors.New("project lease held by another writer")
	// ErrInvalidInput indicates invalid lease input.
	ErrInvalidInput = errors.New("invalid lease input")
)
