package fixtures

import (
	"context"

	"github.com/vouchsafe/vouchsafe/process"
)

// ProcessRootStub is a test implementation of the process.Root interface.
//
// It records every event applied to it, in order.
type ProcessRootStub struct {
	ApplyEventFunc func(ev interface{})

	Events []interface{}
}

// ApplyEvent updates the root to reflect an application-defined event.
func (r *ProcessRootStub) ApplyEvent(ev interface{}) {
	r.Events = append(r.Events, ev)

	if r.ApplyEventFunc != nil {
		r.ApplyEventFunc(ev)
	}
}

// ProcessDefinitionStub is a test implementation of the process.Definition
// interface.
type ProcessDefinitionStub struct {
	NameFunc              func() string
	NewFunc               func() process.Root
	HandleStartFunc       func(context.Context, process.Root, process.Scope, interface{}) error
	HandleSignalFunc      func(context.Context, process.Root, process.Scope, string, interface{}) error
	HandleTaskResultFunc  func(context.Context, process.Root, process.Scope, process.TaskResult) error
	HandleTimerFunc       func(context.Context, process.Root, process.Scope, process.Timer) error
	HandleChildResultFunc func(context.Context, process.Root, process.Scope, process.ChildResult) error
	HandleQueryFunc       func(process.Root, string) (interface{}, error)
}

// Name returns a unique name for the process type.
func (d *ProcessDefinitionStub) Name() string {
	if d.NameFunc != nil {
		return d.NameFunc()
	}

	return "<process>"
}

// New returns a new root in its initial state.
func (d *ProcessDefinitionStub) New() process.Root {
	if d.NewFunc != nil {
		return d.NewFunc()
	}

	return &ProcessRootStub{}
}

// HandleStart begins a new instance, or a new iteration of a continued
// instance.
func (d *ProcessDefinitionStub) HandleStart(
	ctx context.Context,
	r process.Root,
	s process.Scope,
	input interface{},
) error {
	if d.HandleStartFunc != nil {
		return d.HandleStartFunc(ctx, r, s, input)
	}

	return nil
}

// HandleSignal reacts to an external signal.
func (d *ProcessDefinitionStub) HandleSignal(
	ctx context.Context,
	r process.Root,
	s process.Scope,
	name string,
	payload interface{},
) error {
	if d.HandleSignalFunc != nil {
		return d.HandleSignalFunc(ctx, r, s, name, payload)
	}

	return nil
}

// HandleTaskResult reacts to the terminal outcome of a task scheduled via the
// scope.
func (d *ProcessDefinitionStub) HandleTaskResult(
	ctx context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	if d.HandleTaskResultFunc != nil {
		return d.HandleTaskResultFunc(ctx, r, s, res)
	}

	return nil
}

// HandleTimer reacts to the firing of a timer scheduled via the scope.
func (d *ProcessDefinitionStub) HandleTimer(
	ctx context.Context,
	r process.Root,
	s process.Scope,
	t process.Timer,
) error {
	if d.HandleTimerFunc != nil {
		return d.HandleTimerFunc(ctx, r, s, t)
	}

	return nil
}

// HandleChildResult reacts to a child process reaching a terminal state.
func (d *ProcessDefinitionStub) HandleChildResult(
	ctx context.Context,
	r process.Root,
	s process.Scope,
	res process.ChildResult,
) error {
	if d.HandleChildResultFunc != nil {
		return d.HandleChildResultFunc(ctx, r, s, res)
	}

	return nil
}

// HandleQuery answers a synchronous, side-effect-free query against the
// instance's current state.
func (d *ProcessDefinitionStub) HandleQuery(
	r process.Root,
	name string,
) (interface{}, error) {
	if d.HandleQueryFunc != nil {
		return d.HandleQueryFunc(r, name)
	}

	return nil, nil
}

// ContinuableProcessDefinitionStub is a test implementation of the
// process.Definition and process.Continuable interfaces.
type ContinuableProcessDefinitionStub struct {
	ProcessDefinitionStub

	ContinuationInputFunc func(process.Root) interface{}
}

// ContinuationInput returns the start input for the next iteration.
func (d *ContinuableProcessDefinitionStub) ContinuationInput(r process.Root) interface{} {
	if d.ContinuationInputFunc != nil {
		return d.ContinuationInputFunc(r)
	}

	return nil
}
