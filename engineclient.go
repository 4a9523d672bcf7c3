package vouchsafe

import (
	"context"

	"github.com/vouchsafe/vouchsafe/process"
)

// Start creates a new process instance.
//
// It returns an AlreadyExistsError if an instance with the same ID already
// exists, live or persisted. It returns once the instance's initial history
// is durably persisted.
func (e *Engine) Start(
	ctx context.Context,
	id, processType string,
	input interface{},
) error {
	return e.supervisor.Start(ctx, id, processType, input)
}

// Signal delivers an asynchronous external signal to a process instance.
//
// It returns a NotFoundError if no such instance exists. It returns once the
// signal is durably journaled; signals to a terminal instance are accepted
// but never reopen the process.
func (e *Engine) Signal(
	ctx context.Context,
	id, name string,
	payload interface{},
) error {
	return e.supervisor.Signal(ctx, id, name, payload)
}

// Query answers a synchronous, side-effect-free query against a process
// instance's current state.
//
// Queries are answerable at any time. A terminal instance answers with its
// final state forever.
func (e *Engine) Query(
	ctx context.Context,
	id, name string,
) (interface{}, error) {
	return e.supervisor.Query(ctx, id, name)
}

// Cancel requests cancellation of a process instance.
//
// The instance reports CANCELLED immediately; outstanding tasks and children
// receive a best-effort stop request and their late results are discarded.
// Canceling a terminal instance is an idempotent no-op.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.supervisor.Cancel(ctx, id)
}

// Status returns the lifecycle status of a process instance.
func (e *Engine) Status(ctx context.Context, id string) (process.Status, error) {
	return e.supervisor.Status(ctx, id)
}
