package process

import (
	"context"
)

// Root is the mutable state of a process instance.
//
// The root is mutated exclusively by applying events. The engine replays the
// journaled events through ApplyEvent() during recovery, so the method must
// be deterministic and free of side effects.
type Root interface {
	// ApplyEvent updates the root to reflect an application-defined event.
	ApplyEvent(ev interface{})
}

// Definition describes the behavior of one process type.
//
// Handlers execute at most once per triggering message; they are never
// re-executed during replay. All state they need to persist must be recorded
// as events via the scope, and all external work must be requested as tasks.
type Definition interface {
	// Name returns a unique name for the process type.
	Name() string

	// New returns a new root in its initial state.
	New() Root

	// HandleStart begins a new instance, or a new iteration of a continued
	// instance.
	HandleStart(ctx context.Context, r Root, s Scope, input interface{}) error

	// HandleSignal reacts to an external signal.
	//
	// Returning a ValidationError before any effect is requested via the
	// scope rejects the signal cleanly, leaving the journal untouched. An
	// error returned after the scope has been mutated is not a rejection;
	// it fails the process, and the effects recorded before the error are
	// preserved in the journal.
	HandleSignal(ctx context.Context, r Root, s Scope, name string, payload interface{}) error

	// HandleTaskResult reacts to the terminal outcome of a task scheduled
	// via the scope.
	HandleTaskResult(ctx context.Context, r Root, s Scope, res TaskResult) error

	// HandleTimer reacts to the firing of a timer scheduled via the scope.
	HandleTimer(ctx context.Context, r Root, s Scope, t Timer) error

	// HandleChildResult reacts to a child process reaching a terminal state.
	HandleChildResult(ctx context.Context, r Root, s Scope, res ChildResult) error

	// HandleQuery answers a synchronous, side-effect-free query against the
	// instance's current state. It is answerable at any time, including
	// after the instance reaches a terminal state.
	HandleQuery(r Root, name string) (interface{}, error)
}

// Continuable is an optional interface for definitions whose instances may
// be restarted with a fresh history when the history ceiling is reached.
type Continuable interface {
	// ContinuationInput returns the start input for the next iteration,
	// carrying forward the minimal state the process needs.
	ContinuationInput(r Root) interface{}
}

// TaskResult is the terminal outcome of a task, as seen by a process
// definition.
type TaskResult struct {
	// TaskID is the ID returned by Scope.ExecuteTask().
	TaskID string

	// Name is the name of the task.
	Name string

	// Output is the unmarshaled task result. It is nil if Err is non-nil.
	Output interface{}

	// Err describes the task's failure, after its retry policy was
	// exhausted. A failed task does not necessarily fail the process.
	Err error

	// Attempts is the number of attempts that were made.
	Attempts int
}

// Timer identifies a fired timer, as seen by a process definition.
type Timer struct {
	// TimerID is the ID returned by Scope.ScheduleTimer().
	TimerID string

	// Name is the application-defined name of the timer.
	Name string
}

// ChildResult is the terminal outcome of a child process, as seen by its
// parent's definition.
type ChildResult struct {
	// ChildID is the instance ID passed to Scope.StartChild().
	ChildID string

	// ProcessType is the child's process type.
	ProcessType string

	// Output is the unmarshaled result the child completed with. It is nil
	// if Err is non-nil.
	Output interface{}

	// Err describes the child's terminal failure, cancellation or timeout.
	Err error
}
