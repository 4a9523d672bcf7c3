package timer

import (
	"context"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/vouchsafe/vouchsafe/internal/mlog"
	"github.com/vouchsafe/vouchsafe/internal/x/containerx/pqueue"
)

// Timer is a single scheduled firing belonging to a process instance.
type Timer struct {
	// TimerID uniquely identifies the timer across all instances.
	TimerID string

	// InstanceID is the ID of the process instance that scheduled the timer.
	InstanceID string

	// Name is the application-defined name of the timer.
	Name string

	// FireAt is the time at which the timer becomes due.
	FireAt time.Time
}

// elem is a pqueue.Elem that prioritizes timers by their due time.
type elem struct {
	timer Timer
}

func (e *elem) Less(v pqueue.Elem) bool {
	return e.timer.FireAt.Before(v.(*elem).timer.FireAt)
}

// Service fires timers when they become due.
//
// Timers are not durable in themselves. They are re-armed from the journal
// on recovery, so the service only needs to track the in-memory working set.
type Service struct {
	// Fired is called each time a timer becomes due. It is invoked from the
	// service's monitor goroutine.
	Fired func(ctx context.Context, t Timer)

	// Logger is the target for log messages about timer activity.
	Logger logging.Logger

	m          sync.Mutex
	queue      pqueue.Queue
	byID       map[string]*elem
	byInstance map[string]map[string]*elem
	wake       chan struct{}
}

// Schedule adds a timer to the working set.
//
// If the timer is already due it fires on the next iteration of the monitor.
func (s *Service) Schedule(t Timer) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, ok := s.byID[t.TimerID]; ok {
		return
	}

	e := &elem{timer: t}

	if s.byID == nil {
		s.byID = map[string]*elem{}
		s.byInstance = map[string]map[string]*elem{}
	}

	s.byID[t.TimerID] = e

	byTimer := s.byInstance[t.InstanceID]
	if byTimer == nil {
		byTimer = map[string]*elem{}
		s.byInstance[t.InstanceID] = byTimer
	}
	byTimer[t.TimerID] = e

	if s.queue.Push(e) {
		// The new timer became the head of the queue, so the monitor's
		// current sleep deadline is too late.
		s.notify()
	}
}

// Cancel removes a timer from the working set before it fires.
//
// It returns false if there is no such timer, either because it already
// fired or it was never scheduled.
func (s *Service) Cancel(timerID string) bool {
	s.m.Lock()
	defer s.m.Unlock()

	e, ok := s.byID[timerID]
	if !ok {
		return false
	}

	s.remove(e)
	s.queue.Remove(e)

	return true
}

// CancelInstance removes all timers belonging to the given process instance.
func (s *Service) CancelInstance(id string) {
	s.m.Lock()
	defer s.m.Unlock()

	for _, e := range s.byInstance[id] {
		delete(s.byID, e.timer.TimerID)
		s.queue.Remove(e)
	}

	delete(s.byInstance, id)
}

// Run fires timers as they become due until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	for {
		e, wait := s.head()

		if e != nil {
			s.fire(ctx, e.timer)
			continue
		}

		select {
		case <-ctx.Done():
			if wait != nil {
				wait.Stop()
			}
			return ctx.Err()
		case <-s.wakeCh():
		case <-waitC(wait):
		}

		if wait != nil {
			wait.Stop()
		}
	}
}

// head pops the head of the queue if it is due. Otherwise it returns a timer
// that expires when the head becomes due, or nil if the queue is empty.
func (s *Service) head() (*elem, *time.Timer) {
	s.m.Lock()
	defer s.m.Unlock()

	x, ok := s.queue.Peek()
	if !ok {
		return nil, nil
	}

	e := x.(*elem)

	d := time.Until(e.timer.FireAt)
	if d > 0 {
		return nil, time.NewTimer(d)
	}

	s.queue.Pop()
	s.remove(e)

	return e, nil
}

// remove forgets a timer. It does not remove it from the queue.
func (s *Service) remove(e *elem) {
	delete(s.byID, e.timer.TimerID)

	byTimer := s.byInstance[e.timer.InstanceID]
	delete(byTimer, e.timer.TimerID)
	if len(byTimer) == 0 {
		delete(s.byInstance, e.timer.InstanceID)
	}
}

func (s *Service) fire(ctx context.Context, t Timer) {
	logging.Log(
		s.Logger,
		mlog.String(
			[]mlog.IconWithLabel{
				mlog.RecordIDIcon.WithID(t.TimerID),
				mlog.CorrelationIDIcon.WithID(t.InstanceID),
			},
			[]mlog.Icon{mlog.TimerIcon},
			t.Name,
			"fired",
		),
	)

	if s.Fired != nil {
		s.Fired(ctx, t)
	}
}

// notify wakes the monitor goroutine. The caller must hold s.m.
func (s *Service) notify() {
	if s.wake == nil {
		s.wake = make(chan struct{}, 1)
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// wakeCh returns the channel used to wake the monitor, creating it if
// necessary.
func (s *Service) wakeCh() chan struct{} {
	s.m.Lock()
	defer s.m.Unlock()

	if s.wake == nil {
		s.wake = make(chan struct{}, 1)
	}

	return s.wake
}

// waitC returns the timer's channel, or nil if there is no timer. A nil
// channel blocks forever in a select.
func waitC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}
