package semaphore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds the number of task attempts the dispatcher runs at once.
//
// The zero value imposes no bound.
type Semaphore struct {
	n   int
	sem *semaphore.Weighted
}

// New returns a semaphore that admits up to n concurrent task attempts.
func New(n int) Semaphore {
	return Semaphore{
		n,
		semaphore.NewWeighted(int64(n)),
	}
}

// Limit returns the maximum number of concurrent task attempts, or 0 if
// there is no bound.
func (s *Semaphore) Limit() int {
	if s.sem == nil {
		return 0
	}

	return s.n
}

// Acquire blocks until the caller may begin a task attempt, or until ctx is
// canceled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}

	return s.sem.Acquire(ctx, 1)
}

// Release returns the slot held by a completed task attempt.
func (s *Semaphore) Release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}
