package task

import "errors"

// Abort wraps err to indicate that the task must not be retried, regardless
// of how many attempts its policy allows.
func Abort(err error) error {
	return abortError{err}
}

type abortError struct {
	cause error
}

func (e abortError) Error() string {
	return e.cause.Error()
}

func (e abortError) Unwrap() error {
	return e.cause
}

func isAbort(err error) bool {
	var a abortError
	return errors.As(err, &a)
}
