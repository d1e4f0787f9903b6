package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the threadforge library

var (
	// ErrStopped indicates a submission was attempted on a stopped pool
	ErrStopped = errors.New("pool is stopped")

	// ErrQueueLimit indicates the configured pending-task limit was reached
	ErrQueueLimit = errors.New("queue limit reached")

	// ErrDuplicateID indicates a task id is already pending or active
	ErrDuplicateID = errors.New("task id already in flight")

	// ErrNotQuiescent indicates a resize was attempted while tasks were
	// pending or active
	ErrNotQuiescent = errors.New("pool has pending or active tasks")

	// ErrUnknownPipeline indicates a pipeline name is not registered
	ErrUnknownPipeline = errors.New("unknown pipeline")
)

// IsRejection returns true if the error represents an admission-control
// rejection: the submission was refused and no task was created.
func IsRejection(err error) bool {
	return errors.Is(err, ErrStopped) || errors.Is(err, ErrQueueLimit) || errors.Is(err, ErrDuplicateID)
}

// ValidationError describes an invalid configuration or input parameter.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// NewValidationError creates a new validation error.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint to the error.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

// IsValidation returns true if the error is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
