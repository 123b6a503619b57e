package storage

import "errors"

var (
	// ErrMissingUser is returned when an operation is invoked without a
	// resolved user identity.
	ErrMissingUser = errors.New("missing user id")
	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrEmptyUpdate is returned when an update carries no fields.
	ErrEmptyUpdate = errors.New("update has no fields")
)

// StoreError wraps any failure from the task store with the operation that
// produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
