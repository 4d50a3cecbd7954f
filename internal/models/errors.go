package models

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds recorded on task records
const (
	ErrorKindValidation = "validation"
	ErrorKindProcessing = "processing"
	ErrorKindTimeout    = "timeout"
	ErrorKindStorage    = "storage"
	ErrorKindConflict   = "conflict"
	ErrorKindNotFound   = "not_found"
	ErrorKindPanic      = "panic"
)

// ValidationError rejects a malformed submission before a task is created
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a validation error for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ProcessingError is a processor-reported failure. Retryable failures are
// re-queued by the engine up to the task's max attempts.
type ProcessingError struct {
	Message   string
	Retryable bool
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError wraps a processor failure
func NewProcessingError(message string, retryable bool, cause error) *ProcessingError {
	return &ProcessingError{Message: message, Retryable: retryable, Cause: cause}
}

// NewTimeoutError reports a processor that exceeded its deadline.
// Timeouts are retryable until attempts are exhausted. The deadline cause is
// attached so ClassifyError records the timeout kind.
func NewTimeoutError(message string) *ProcessingError {
	return &ProcessingError{Message: message, Retryable: true, Cause: context.DeadlineExceeded}
}

// ClassifyError converts an arbitrary processor error into the structured
// form persisted on the task record. Context deadline errors become retryable
// timeouts; anything unrecognized is a non-retryable processing error.
func ClassifyError(err error) *TaskError {
	if err == nil {
		return nil
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &TaskError{
			Kind:      ErrorKindValidation,
			Message:   validationErr.Error(),
			Retryable: false,
		}
	}

	var processingErr *ProcessingError
	if errors.As(err, &processingErr) {
		kind := ErrorKindProcessing
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrorKindTimeout
		}
		return &TaskError{
			Kind:      kind,
			Message:   processingErr.Error(),
			Retryable: processingErr.Retryable,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TaskError{
			Kind:      ErrorKindTimeout,
			Message:   err.Error(),
			Retryable: true,
		}
	}

	return &TaskError{
		Kind:      ErrorKindProcessing,
		Message:   err.Error(),
		Retryable: false,
	}
}
