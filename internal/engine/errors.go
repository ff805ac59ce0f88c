package engine

import (
	"context"
	"errors"
)

// TransientError marks a subtask failure caused by a recoverable condition
// (timeout, external service unavailable). Transient failures are retried;
// everything else fails the attempt immediately.
type TransientError struct {
	Err error
}

// Error returns the underlying error message.
func (e *TransientError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable. Wrapping nil returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether a failure is eligible for retry. Deadline
// expiry counts as transient even when not explicitly wrapped.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
