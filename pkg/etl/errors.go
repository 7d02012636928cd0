package etl

import "fmt"

// ValidationError reports a single incoming record that failed validation.
// The record is skipped; the rest of the source pass continues.
type ValidationError struct {
	ConceptID string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %q: %v", e.ConceptID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
