package task

import (
	"time"

	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

var (
	// DefaultMaxAttempts is the default maximum number of attempts made at
	// executing a task before it is recorded as failed.
	DefaultMaxAttempts = 3

	// DefaultBackoffMin is the default delay before the first retry of a
	// failed task attempt.
	DefaultBackoffMin = 100 * time.Millisecond

	// DefaultBackoffMax is the default upper bound on the delay between
	// attempts at executing a task.
	DefaultBackoffMax = 1 * time.Minute

	// DefaultStartToClose is the default deadline for a single attempt at
	// executing a task, measured from the moment the attempt starts.
	DefaultStartToClose = 1 * time.Minute
)

// Policy controls how the dispatcher retries and times out a task.
//
// Policies are recorded in the journal alongside the task they govern, so
// that recovery re-dispatches the task under the same rules.
type Policy struct {
	// MaxAttempts is the maximum number of attempts made at executing the
	// task. If it is zero, DefaultMaxAttempts is used. A negative value
	// allows unlimited attempts.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// BackoffMin is the delay before the first retry. If it is zero,
	// DefaultBackoffMin is used.
	BackoffMin time.Duration `json:"backoff_min,omitempty"`

	// BackoffMax is the upper bound on the delay between attempts. If it is
	// zero, DefaultBackoffMax is used.
	BackoffMax time.Duration `json:"backoff_max,omitempty"`

	// StartToClose is the deadline for a single attempt. If it is zero,
	// DefaultStartToClose is used.
	StartToClose time.Duration `json:"start_to_close,omitempty"`

	// ScheduleToStart is the maximum time the task may wait for a worker
	// slot before it is recorded as failed. If it is zero, the task waits
	// indefinitely.
	ScheduleToStart time.Duration `json:"schedule_to_start,omitempty"`

	// HeartbeatInterval is the maximum time allowed between heartbeats
	// before the attempt is considered stalled and retried immediately. If
	// it is zero, stall detection is disabled.
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty"`
}

// Merge returns a copy of the policy with zero-valued fields replaced by the
// corresponding fields of def.
func (p Policy) Merge(def Policy) Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}

	if p.BackoffMin == 0 {
		p.BackoffMin = def.BackoffMin
	}

	if p.BackoffMax == 0 {
		p.BackoffMax = def.BackoffMax
	}

	if p.StartToClose == 0 {
		p.StartToClose = def.StartToClose
	}

	if p.ScheduleToStart == 0 {
		p.ScheduleToStart = def.ScheduleToStart
	}

	if p.HeartbeatInterval == 0 {
		p.HeartbeatInterval = def.HeartbeatInterval
	}

	return p
}

// WithDefaults returns a copy of the policy with zero-valued fields replaced
// by their defaults.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	if p.BackoffMin == 0 {
		p.BackoffMin = DefaultBackoffMin
	}

	if p.BackoffMax == 0 {
		p.BackoffMax = DefaultBackoffMax
	}

	if p.StartToClose == 0 {
		p.StartToClose = DefaultStartToClose
	}

	return p
}

// Strategy returns the backoff strategy used to delay retries under this
// policy.
func (p Policy) Strategy() backoff.Strategy {
	return backoff.WithTransforms(
		backoff.Exponential(p.BackoffMin),
		linger.FullJitter,
		linger.Limiter(0, p.BackoffMax),
	)
}
