package extraction

import "errors"

// ErrValidation marks an AI response that failed schema validation.
// It degrades the single extraction, never the run.
var ErrValidation = errors.New("extraction response failed validation")

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
