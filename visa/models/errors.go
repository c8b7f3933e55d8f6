package models

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	// ErrSequence is returned when a payment arrives without a prior card
	// verification in the same session.
	ErrSequence = errors.New("card not verified")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

func maxLen(field, value string, n int) error {
	if utf8.RuneCountInString(value) > n {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", n)}
	}
	return nil
}
