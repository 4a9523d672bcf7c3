package task

import (
	"context"
	"fmt"
)

// Handler is a function that performs a single unit of externally-visible
// work on behalf of a process instance.
//
// Handlers must be idempotent. The engine guarantees that at most one
// outcome per task reaches the process, but a crash between executing a
// handler and persisting its outcome causes the handler to run again.
//
// The input value is the unmarshaled task input. The returned value is
// marshaled and recorded as the task's result.
type Handler func(ctx context.Context, hb *Heartbeat, input interface{}) (interface{}, error)

// Registry is a collection of task handlers, keyed by task name.
//
// It is constructed once during engine setup and passed by reference to the
// components that need it. It must not be modified after the engine starts.
type Registry struct {
	handlers map[string]Handler
}

// Register adds a handler to the registry under the given name.
//
// It panics if a handler with the same name is already registered.
func (r *Registry) Register(name string, h Handler) {
	if r.handlers == nil {
		r.handlers = map[string]Handler{}
	}

	if _, ok := r.handlers[name]; ok {
		panic(fmt.Sprintf("a handler named %#v is already registered", name))
	}

	r.handlers[name] = h
}

// HandlerByName returns the handler registered under the given name.
func (r *Registry) HandlerByName(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the names of all registered handlers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}

	return names
}
