package cursor

import "errors"

// ErrInvalidInput indicates invalid cursor input.
var ErrInvalidInput = errors.New("invalid cursor input")
