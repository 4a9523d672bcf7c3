package persistence

import "fmt"

// ConflictError is an error indicating that an append or reset operation was
// performed against a stale view of an instance's journal.
type ConflictError struct {
	// InstanceID is the ID of the instance that the operation targeted.
	InstanceID string

	// ExpectedGeneration and ExpectedOffset are the values the caller
	// presented.
	ExpectedGeneration uint64
	ExpectedOffset     uint64

	// ActualGeneration and ActualOffset are the values the data store holds.
	ActualGeneration uint64
	ActualOffset     uint64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict on instance %s, expected generation %d / offset %d, found generation %d / offset %d",
		e.InstanceID,
		e.ExpectedGeneration,
		e.ExpectedOffset,
		e.ActualGeneration,
		e.ActualOffset,
	)
}
