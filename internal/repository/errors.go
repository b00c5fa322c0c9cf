package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness violation (duplicate email or handle).
	ErrConflict = errors.New("repository: conflict")
	// ErrUnavailable indicates the backing store cannot be reached. Callers
	// treat this as a signal to drain sessions rather than serve stale data.
	ErrUnavailable = errors.New("repository: unavailable")
)

// ConflictError is a uniqueness violation annotated with the user-facing
// field the violated constraint protects. It matches ErrConflict under
// errors.Is.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return ErrConflict.Error() + ": duplicate " + e.Field
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
