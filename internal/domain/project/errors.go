package project

import "errors"

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrAlreadyExists indicates the project name is taken.
	ErrAlreadyExists = errors.New("project already exists")
	// ErrInvalidInput indicates invalid project input.
	ErrInvalidInput = errors.New("invalid project input")
)
