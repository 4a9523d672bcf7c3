package journal

import (
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/vouchsafe/vouchsafe/task"
)

// Event is a single entry in a process instance's history.
//
// The built-in event types defined in this package describe the engine-level
// state transitions of an instance. Application-defined events are carried
// inside a StateModified event as a marshaled packet.
type Event interface {
	// Kind returns a unique, stable identifier for the event type. It is
	// used as the discriminator when records are marshaled.
	Kind() string
}

// ProcessStarted is the first event in every journal generation. It records
// the input that the process was started (or continued) with.
type ProcessStarted struct {
	// ProcessType is the name of the process definition, as registered with
	// the engine.
	ProcessType string `json:"process_type"`

	// Parent is the instance ID of the parent process, or empty if this
	// instance is a root.
	Parent string `json:"parent,omitempty"`

	// Iteration is the number of times the process has been continued into a
	// fresh generation. It is zero for the first generation.
	Iteration uint64 `json:"iteration"`

	// Input is the marshaled process input.
	Input marshalkit.Packet `json:"input"`
}

// Kind returns a unique identifier for the event type.
func (ProcessStarted) Kind() string { return "process-started" }

// SignalReceived records the arrival of an external signal.
type SignalReceived struct {
	Name    string            `json:"name"`
	Payload marshalkit.Packet `json:"payload"`
}

// Kind returns a unique identifier for the event type.
func (SignalReceived) Kind() string { return "signal-received" }

// SignalDiscarded is a diagnostic event recording a signal that arrived
// after the process reached a terminal state. It never reopens the process.
type SignalDiscarded struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Kind returns a unique identifier for the event type.
func (SignalDiscarded) Kind() string { return "signal-discarded" }

// TaskScheduled records the intent to execute a task via an external
// collaborator. A scheduled task with no corresponding TaskCompleted or
// TaskFailed event is re-dispatched on recovery.
type TaskScheduled struct {
	TaskID string            `json:"task_id"`
	Name   string            `json:"name"`
	Input  marshalkit.Packet `json:"input"`
	Policy task.Policy       `json:"policy"`
}

// Kind returns a unique identifier for the event type.
func (TaskScheduled) Kind() string { return "task-scheduled" }

// TaskCompleted records the successful terminal outcome of a task. It is
// written exactly once per task, regardless of how many attempts were made.
type TaskCompleted struct {
	TaskID   string            `json:"task_id"`
	Result   marshalkit.Packet `json:"result"`
	Attempts int               `json:"attempts"`
}

// Kind returns a unique identifier for the event type.
func (TaskCompleted) Kind() string { return "task-completed" }

// TaskFailed records the terminal failure of a task, after its retry policy
// was exhausted or a non-retryable error occurred.
type TaskFailed struct {
	TaskID   string `json:"task_id"`
	Cause    string `json:"cause"`
	Attempts int    `json:"attempts"`
}

// Kind returns a unique identifier for the event type.
func (TaskFailed) Kind() string { return "task-failed" }

// TimerScheduled records the creation of a durable timer. A scheduled timer
// with no corresponding TimerFired or TimerCanceled event is re-armed on
// recovery, or fired immediately if its deadline has already passed.
type TimerScheduled struct {
	TimerID string    `json:"timer_id"`
	Name    string    `json:"name"`
	FireAt  time.Time `json:"fire_at"`
}

// Kind returns a unique identifier for the event type.
func (TimerScheduled) Kind() string { return "timer-scheduled" }

// TimerFired records that a timer's deadline was reached.
type TimerFired struct {
	TimerID string `json:"timer_id"`
}

// Kind returns a unique identifier for the event type.
func (TimerFired) Kind() string { return "timer-fired" }

// TimerCanceled records that a timer was canceled before it fired.
type TimerCanceled struct {
	TimerID string `json:"timer_id"`
}

// Kind returns a unique identifier for the event type.
func (TimerCanceled) Kind() string { return "timer-canceled" }

// ChildStarted records that a child process instance was spawned.
type ChildStarted struct {
	ChildID     string            `json:"child_id"`
	ProcessType string            `json:"process_type"`
	Input       marshalkit.Packet `json:"input"`
}

// Kind returns a unique identifier for the event type.
func (ChildStarted) Kind() string { return "child-started" }

// ChildCompleted records the successful completion of a child process.
type ChildCompleted struct {
	ChildID string            `json:"child_id"`
	Result  marshalkit.Packet `json:"result"`
}

// Kind returns a unique identifier for the event type.
func (ChildCompleted) Kind() string { return "child-completed" }

// ChildFailed records that a child process reached a terminal state other
// than COMPLETED. It does not imply failure of the parent.
type ChildFailed struct {
	ChildID string `json:"child_id"`
	Cause   string `json:"cause"`
}

// Kind returns a unique identifier for the event type.
func (ChildFailed) Kind() string { return "child-failed" }

// StateModified carries an application-defined event that mutates the
// process root. The packet is unmarshaled and passed to Root.ApplyEvent()
// both when the event is first recorded and during replay.
type StateModified struct {
	Event marshalkit.Packet `json:"event"`
}

// Kind returns a unique identifier for the event type.
func (StateModified) Kind() string { return "state-modified" }

// ProcessCompleted records the transition to the COMPLETED terminal state.
type ProcessCompleted struct {
	Result marshalkit.Packet `json:"result"`
}

// Kind returns a unique identifier for the event type.
func (ProcessCompleted) Kind() string { return "process-completed" }

// ProcessCanceled records the transition to the CANCELLED terminal state.
type ProcessCanceled struct{}

// Kind returns a unique identifier for the event type.
func (ProcessCanceled) Kind() string { return "process-canceled" }

// ProcessTimedOut records the transition to the TIMED_OUT terminal state.
type ProcessTimedOut struct{}

// Kind returns a unique identifier for the event type.
func (ProcessTimedOut) Kind() string { return "process-timed-out" }

// ProcessFailed records the transition to the FAILED terminal state.
type ProcessFailed struct {
	Cause string `json:"cause"`
}

// Kind returns a unique identifier for the event type.
func (ProcessFailed) Kind() string { return "process-failed" }

// ProcessContinued records that the process was restarted into a fresh
// generation carrying only its continuation input. It is the logical last
// event of a generation; the generation it seals is discarded.
type ProcessContinued struct {
	Iteration uint64            `json:"iteration"`
	Input     marshalkit.Packet `json:"input"`
}

// Kind returns a unique identifier for the event type.
func (ProcessContinued) Kind() string { return "process-continued" }
