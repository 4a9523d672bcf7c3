package process

// Status is the lifecycle state of a process instance.
type Status string

const (
	// StatusRunning indicates that the instance is live and accepting
	// signals.
	StatusRunning Status = "RUNNING"

	// StatusCompleted indicates that the instance finished successfully.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed indicates that the instance failed due to a handler error
	// or an invariant violation.
	StatusFailed Status = "FAILED"

	// StatusCancelled indicates that the instance was canceled before it
	// finished.
	StatusCancelled Status = "CANCELLED"

	// StatusTimedOut indicates that the instance reached its deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// IsTerminal returns true if s is a terminal status.
//
// Terminal statuses are one-way. An instance in a terminal status accepts no
// further signals, but answers queries with its final state forever.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}

	return false
}
