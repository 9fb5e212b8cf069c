package domain

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrNotFound is returned when no record exists for a date.
	ErrNotFound = fmt.Errorf("training record %w", errdefs.ErrNotFound)
	// ErrStaleRecord is returned when the referenced row no longer carries the confirmed date.
	ErrStaleRecord = fmt.Errorf("record reference is stale: %w", errdefs.ErrFailedPrecondition)
	// ErrInvalidField is returned for a field name outside workout, volume_content, goal.
	ErrInvalidField = fmt.Errorf("field is not editable: %w", errdefs.ErrInvalidArgument)
	// ErrUnavailable marks backend connectivity failures.
	ErrUnavailable = fmt.Errorf("record backend: %w", errdefs.ErrUnavailable)
)

// ValidationError reports user input that does not fit the current dialogue state.
type ValidationError struct {
	Reason string
}

// NewValidationError creates a ValidationError with the given user-facing reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Unwrap classifies validation errors as invalid arguments.
func (e *ValidationError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}

// StoreError wraps any failure of a Record Store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err for operation op. Nil stays nil and existing
// StoreErrors are not wrapped twice.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// FatalConfigError aborts startup.
type FatalConfigError struct {
	Err error
}

func (e *FatalConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *FatalConfigError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// IsValidation reports whether err is a user input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStale reports whether err is a stale record reference.
func IsStale(err error) bool {
	return errdefs.IsFailedPrecondition(err)
}

// IsStoreError reports whether err came from the Record Store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
