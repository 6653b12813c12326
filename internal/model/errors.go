package model

import (
	"errors"
	"fmt"
)

// InputValidationError is returned when a CompanyIdentity is unusable.
// Nothing is searched when it occurs.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// SearchExhaustedError means every query of an aggregation failed.
type SearchExhaustedError struct {
	Queries  int
	Failures []error
}

func (e *SearchExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("search exhausted: %d queries, no results", e.Queries)
	}
	return fmt.Sprintf("search exhausted: %d queries failed, last: %v", e.Queries, e.Failures[len(e.Failures)-1])
}

// Unwrap exposes the individual query failures to errors.Is/As.
func (e *SearchExhaustedError) Unwrap() []error { return e.Failures }

// ExtractionError covers collaborator failures, timeouts, and output that
// does not parse into a profile.
type ExtractionError struct {
	Phase  Phase
	Round  int
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed (phase=%s round=%d): %s", e.Phase, e.Round, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError is returned when a merged record could not be written or
// read. It is never retried implicitly beyond the store's own retry policy.
type PersistenceError struct {
	Op        string
	CompanyID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for %q: %v", e.Op, e.CompanyID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsInputValidation reports whether err wraps an InputValidationError.
func IsInputValidation(err error) bool {
	var target *InputValidationError
	return errors.As(err, &target)
}

// IsSearchExhausted reports whether err wraps a SearchExhaustedError.
func IsSearchExhausted(err error) bool {
	var target *SearchExhaustedError
	return errors.As(err, &target)
}

// IsExtraction reports whether err wraps an ExtractionError.
func IsExtraction(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

// IsPersistence reports whether err wraps a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
