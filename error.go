package vouchsafe

import "github.com/vouchsafe/vouchsafe/process"

type (
	// NotFoundError is the error returned when a signal, query or
	// cancellation refers to a process instance that does not exist.
	NotFoundError = process.NotFoundError

	// AlreadyExistsError is the error returned when starting a process
	// instance with an ID that is already in use.
	AlreadyExistsError = process.AlreadyExistsError

	// ValidationError is the error returned when a signal or start input is
	// rejected by a process definition.
	ValidationError = process.ValidationError
)
