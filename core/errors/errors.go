// Package errors provides the typed errors shared by the apparatus engine and
// the tools built around it.
//
// Every typed error unwraps to a package-level sentinel so callers can branch
// with errors.Is while still reaching the structured fields with errors.As.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel of NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is the sentinel of ValidationError and ParseError:
	// the caller supplied something that cannot be used as given.
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError reports a missing job, document, index or witness.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return e.Resource + " not found: " + e.ID
}

// Unwrap returns the cause, or ErrNotFound when there is none.
func (e *NotFoundError) Unwrap() error {
	return orSentinel(e.Err, ErrNotFound)
}

// ValidationError reports a setting or request field that was rejected.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return "validation failed for " + e.Field + ": " + e.Message
}

// Unwrap returns the cause, or ErrInvalidInput when there is none.
func (e *ValidationError) Unwrap() error {
	return orSentinel(e.Err, ErrInvalidInput)
}

// IOError reports a failed read or write of a record file, bundle, blob or
// database. It unwraps to the operating system error.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports malformed input: JSON or XML records, anchors,
// witness lists, content indexes and configuration files. Path locates the
// problem and may name a file, a record or the text itself.
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
	}
	return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
}

// Unwrap returns the cause, or ErrInvalidInput when there is none.
func (e *ParseError) Unwrap() error {
	return orSentinel(e.Err, ErrInvalidInput)
}

// Is reports every parse failure as invalid input, whatever its cause.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidInput
}

func orSentinel(err, sentinel error) error {
	if err != nil {
		return err
	}
	return sentinel
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewIO creates an IOError.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewParse creates a ParseError with no underlying cause.
func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}
