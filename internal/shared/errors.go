package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a rejected payload.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a state transition the current state forbids.
	ErrConflict = errors.New("conflicting state")
)
