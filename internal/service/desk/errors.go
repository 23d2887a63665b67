package desk

import "errors"

// Callers match these with errors.Is; the wrapped message carries the detail.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)
