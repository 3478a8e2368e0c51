package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWorkbook   = errors.New("invalid workbook")
	ErrStudentNotFound   = errors.New("student not found")
	ErrSessionNotFound   = errors.New("import session not found")
	ErrSessionClosed     = errors.New("import session is closed")
	ErrConflictNotFound  = errors.New("conflict not found or already applied")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// RetryableError marks failures of a queued import job that are worth
// another attempt (storage or store connectivity), as opposed to a corrupt
// workbook.
type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}
