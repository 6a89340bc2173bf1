package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (spec.md §7). HTTP handlers match these with
// errors.Is rather than inspecting status codes or message strings, the
// same pattern the teacher's error_mapper.go uses for its domain errors.
var (
	// ErrValidation signals a malformed request; never reaches the executor.
	ErrValidation = errors.New("validation error")
	// ErrNotFound signals a missing run, hierarchy, or event.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an illegal state transition, e.g. cancelling a
	// terminal run.
	ErrConflict = errors.New("conflicting state")
	// ErrUnavailable signals infrastructure is not ready to serve the
	// request (e.g. broadcaster/coordinator not initialized).
	ErrUnavailable = errors.New("unavailable")
	// ErrPersistence signals a store/sink failure (§7 PersistenceFailure).
	ErrPersistence = errors.New("persistence error")
)

// ValidationError wraps a message under ErrValidation.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError wraps a message under ErrNotFound.
func NotFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ConflictError wraps a message under ErrConflict.
func ConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// UnavailableError wraps a message under ErrUnavailable.
func UnavailableError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// PersistenceError wraps a message under ErrPersistence.
func PersistenceError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPersistence, fmt.Sprintf(format, args...))
}
