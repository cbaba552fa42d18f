package queue

import "errors"

// Queue errors.
var (
	ErrItemNotFound    = errors.New("queue item not found")
	ErrInvalidTrigger  = errors.New("invalid trigger type")
	ErrInvalidPriority = errors.New("invalid priority")
)

// RetryableError wraps an error and marks it as retryable or not. Attempt
// failures are retryable unless marked otherwise.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

// isRetryable checks if an error is retryable. Unknown errors default to
// retryable so transient infrastructure faults get their attempts.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
