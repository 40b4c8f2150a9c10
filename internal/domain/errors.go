package domain

import (
	"errors"
	"fmt"

	"agenda/internal/ratelimit"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrSlotBlocked         = errors.New("slot is blocked")
	ErrSlotTaken           = errors.New("slot is already taken")
	ErrRateLimitExceeded   = ratelimit.ErrLimitExceeded
	ErrDataAccess          = errors.New("data access failed")
	ErrNotFound            = errors.New("not found")
	ErrCompanyNotFound     = fmt.Errorf("company %w", ErrNotFound)
	ErrFeatureNotAvailable = errors.New("feature not available on current plan")
)

// ValidationError names the first offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DataAccessError wraps a storage failure. Callers may retry.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

func (e *DataAccessError) Is(target error) bool {
	return target == ErrDataAccess
}

// UniqueViolationError is returned by stores when an insert hits a unique index.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %q violated: %v", e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }
