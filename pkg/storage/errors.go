package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup that matched no stored row.
var ErrNotFound = errors.New("record not found")

// StorageError wraps a backend failure with the operation that hit it.
// Callers treat these as fatal for the current pass.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err unless it is already a StorageError or the
// not-found sentinel.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
