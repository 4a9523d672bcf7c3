package process

import "fmt"

// NotFoundError is the error returned when a signal, query or cancellation
// refers to a process instance that does not exist.
type NotFoundError struct {
	InstanceID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(
		"process instance %s does not exist",
		e.InstanceID,
	)
}

// AlreadyExistsError is the error returned when starting a process instance
// with an ID that is already in use.
type AlreadyExistsError struct {
	InstanceID string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf(
		"process instance %s already exists",
		e.InstanceID,
	)
}

// UnknownProcessTypeError is the error returned when starting a process of a
// type that has not been registered.
type UnknownProcessTypeError struct {
	ProcessType string
}

func (e UnknownProcessTypeError) Error() string {
	return fmt.Sprintf(
		"no process definition is registered for %#v",
		e.ProcessType,
	)
}

// ValidationError is returned by a process definition to reject malformed
// input. The triggering signal or start request is refused and nothing is
// journaled; the process is unaffected.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// Validationf returns a ValidationError with a formatted reason.
func Validationf(f string, v ...interface{}) ValidationError {
	return ValidationError{
		Reason: fmt.Sprintf(f, v...),
	}
}
