package process

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/vouchsafe/vouchsafe/internal/mlog"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/task"
)

// Scope is the interface through which a process definition requests effects.
//
// Effects are journaled atomically with the event that triggered them, and
// performed only after the journal write succeeds. A scope is valid only for
// the duration of the handler invocation it was passed to.
type Scope interface {
	// InstanceID returns the ID of the process instance.
	InstanceID() string

	// Iteration returns the number of times the instance has been continued
	// into a fresh history.
	Iteration() uint64

	// Log records an informational message about the instance.
	Log(f string, v ...interface{})

	// RecordEvent journals an application-defined event and applies it to
	// the root immediately.
	RecordEvent(ev interface{})

	// ExecuteTask schedules a task for asynchronous execution. The outcome
	// is delivered to HandleTaskResult(). It returns the task's ID.
	ExecuteTask(name string, input interface{}, p task.Policy) string

	// ScheduleTimer schedules a timer that fires after the given delay. The
	// firing is delivered to HandleTimer(). It returns the timer's ID.
	ScheduleTimer(name string, d time.Duration) string

	// ScheduleTimerAt schedules a timer that fires at the given time.
	ScheduleTimerAt(name string, at time.Time) string

	// CancelTimer cancels a pending timer. It returns false if the timer
	// has already fired or been canceled.
	CancelTimer(timerID string) bool

	// StartChild spawns a child process instance with the given ID. The
	// child's terminal outcome is delivered to HandleChildResult().
	StartChild(processType, id string, input interface{})

	// Complete moves the instance to the COMPLETED terminal state, with the
	// given result.
	Complete(result interface{})

	// Cancel moves the instance to the CANCELLED terminal state. It is
	// equivalent to an engine-level cancellation requested by the definition
	// itself, typically in response to a domain-specific cancel signal.
	Cancel()

	// Fail moves the instance to the FAILED terminal state.
	Fail(reason string)

	// TimeOut moves the instance to the TIMED_OUT terminal state.
	TimeOut()

	// ContinueAsNew completes the current history and restarts the instance
	// with a fresh one, carrying only the given input forward.
	ContinueAsNew(input interface{})
}

// scope is the implementation of Scope used by instance.
type scope struct {
	inst  *instance
	cause *journal.Record

	// effects is the batch of records produced by the handler, excluding
	// the cause record itself.
	effects []*journal.Record

	// mutated is true once RecordEvent() has been called. A handler error
	// after mutation can no longer be treated as a clean rejection.
	mutated bool

	// closed is true once a terminal effect or continuation is requested.
	closed bool

	continued     bool
	continueInput interface{}
}

func (s *scope) InstanceID() string {
	return s.inst.id
}

func (s *scope) Iteration() uint64 {
	return s.inst.iteration
}

func (s *scope) Log(f string, v ...interface{}) {
	logging.Log(
		s.inst.logger,
		mlog.String(
			[]mlog.IconWithLabel{
				mlog.RecordIDIcon.WithID(s.cause.RecordID),
				mlog.CorrelationIDIcon.WithID(s.inst.id),
			},
			[]mlog.Icon{mlog.ProcessIcon},
			fmt.Sprintf(f, v...),
		),
	)
}

func (s *scope) RecordEvent(ev interface{}) {
	s.push(&journal.StateModified{
		Event: s.inst.pack(ev),
	})

	s.mutated = true
	s.inst.root.ApplyEvent(ev)
}

func (s *scope) ExecuteTask(name string, input interface{}, p task.Policy) string {
	id := s.inst.newID()

	s.push(&journal.TaskScheduled{
		TaskID: id,
		Name:   name,
		Input:  s.inst.pack(input),
		Policy: p,
	})

	return id
}

func (s *scope) ScheduleTimer(name string, d time.Duration) string {
	return s.ScheduleTimerAt(name, time.Now().Add(d))
}

func (s *scope) ScheduleTimerAt(name string, at time.Time) string {
	id := s.inst.newID()

	s.push(&journal.TimerScheduled{
		TimerID: id,
		Name:    name,
		FireAt:  at,
	})

	return id
}

func (s *scope) CancelTimer(timerID string) bool {
	if !s.pendingTimer(timerID) {
		return false
	}

	s.push(&journal.TimerCanceled{
		TimerID: timerID,
	})

	return true
}

// pendingTimer reports whether the timer is pending, taking into account
// timers scheduled or canceled earlier in this same batch.
func (s *scope) pendingTimer(timerID string) bool {
	pending := false

	if _, ok := s.inst.timers[timerID]; ok {
		pending = true
	}

	for _, rec := range s.effects {
		switch ev := rec.Event.(type) {
		case *journal.TimerScheduled:
			if ev.TimerID == timerID {
				pending = true
			}
		case *journal.TimerCanceled:
			if ev.TimerID == timerID {
				pending = false
			}
		}
	}

	return pending
}

func (s *scope) StartChild(processType, id string, input interface{}) {
	s.push(&journal.ChildStarted{
		ChildID:     id,
		ProcessType: processType,
		Input:       s.inst.pack(input),
	})
}

func (s *scope) Complete(result interface{}) {
	s.push(&journal.ProcessCompleted{
		Result: s.inst.pack(result),
	})

	s.closed = true
}

func (s *scope) Cancel() {
	s.push(&journal.ProcessCanceled{})

	s.closed = true
}

func (s *scope) Fail(reason string) {
	s.push(&journal.ProcessFailed{
		Cause: reason,
	})

	s.closed = true
}

func (s *scope) TimeOut() {
	s.push(&journal.ProcessTimedOut{})

	s.closed = true
}

func (s *scope) ContinueAsNew(input interface{}) {
	s.push(&journal.ProcessContinued{
		Iteration: s.inst.iteration + 1,
		Input:     s.inst.pack(input),
	})

	s.closed = true
	s.continued = true
	s.continueInput = input
}

// push appends an effect to the batch.
func (s *scope) push(ev journal.Event) {
	if s.closed {
		panic("no effects may be requested after the instance is closed")
	}

	s.effects = append(
		s.effects,
		s.inst.packer.PackCausedBy(s.cause, ev),
	)
}
