package task

import (
	"sync"
	"time"
)

// Heartbeat records liveness and progress for a task.
//
// A handler for a long-running task calls Beat() periodically to signal that
// it is still making progress. If the task's policy specifies a heartbeat
// interval and no beat arrives within it, the attempt is canceled and
// retried immediately.
//
// The progress token passed to Beat() survives across attempts. A retried
// attempt reads it via Progress() to resume from where the stalled attempt
// left off.
type Heartbeat struct {
	m        sync.Mutex
	last     time.Time
	progress interface{}
}

// Beat records that the task is still alive, along with an optional progress
// token. A nil progress token retains the previously recorded one.
func (h *Heartbeat) Beat(progress interface{}) {
	h.m.Lock()
	defer h.m.Unlock()

	h.last = time.Now()

	if progress != nil {
		h.progress = progress
	}
}

// Progress returns the most recently recorded progress token, or nil if no
// progress has been recorded.
func (h *Heartbeat) Progress() interface{} {
	h.m.Lock()
	defer h.m.Unlock()

	return h.progress
}

// reset marks the start of a new attempt, so that stall detection measures
// from the attempt start rather than the last beat of a prior attempt.
func (h *Heartbeat) reset() {
	h.m.Lock()
	defer h.m.Unlock()

	h.last = time.Now()
}

// since returns the time elapsed since the last beat (or attempt start).
func (h *Heartbeat) since() time.Duration {
	h.m.Lock()
	defer h.m.Unlock()

	return time.Since(h.last)
}
