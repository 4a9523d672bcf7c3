package vouchsafe

import (
	"context"

	"github.com/vouchsafe/vouchsafe/internal/x/loggingx"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/semaphore"
	"github.com/vouchsafe/vouchsafe/task"
	"github.com/vouchsafe/vouchsafe/timer"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Engine hosts a set of durable process definitions.
//
// Every state transition of every process instance is journaled before its
// side effects are performed, allowing the engine to be stopped at any point
// and recover to an equivalent state by replay.
type Engine struct {
	opts       *engineOptions
	timers     *timer.Service
	dispatcher *task.Dispatcher
	supervisor *process.Supervisor
}

// New returns a new engine configured by the given options.
//
// At least one process definition must be provided via WithProcess().
func New(options ...EngineOption) *Engine {
	opts := resolveEngineOptions(options...)

	timers := &timer.Service{
		Logger: loggingx.WithPrefix(opts.Logger, "[timer] "),
	}

	dispatcher := &task.Dispatcher{
		Handlers:  opts.Tasks,
		Semaphore: semaphore.New(int(opts.ConcurrencyLimit)),
		Defaults:  opts.TaskDefaults,
		Logger:    loggingx.WithPrefix(opts.Logger, "[task] "),
	}

	supervisor := &process.Supervisor{
		Marshaler:      opts.Marshaler,
		Packer:         &journal.Packer{},
		Tasks:          dispatcher,
		Timers:         timers,
		Logger:         loggingx.WithPrefix(opts.Logger, "[process] "),
		HistoryCeiling: opts.HistoryCeiling,
		MessageTimeout: opts.MessageTimeout,
	}

	for _, def := range opts.Definitions {
		supervisor.RegisterDefinition(def)
	}

	dispatcher.Results = supervisor.DeliverTaskResult
	timers.Fired = supervisor.DeliverTimerFiring

	return &Engine{
		opts:       opts,
		timers:     timers,
		dispatcher: dispatcher,
		supervisor: supervisor,
	}
}

// Run hosts the registered processes until ctx is canceled or an error
// occurs.
//
// Persisted instances are recovered before any client operation is served.
func (e *Engine) Run(ctx context.Context) (err error) {
	ds, err := e.opts.PersistenceProvider.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, ds.Close())
	}()

	e.supervisor.DataStore = ds

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.timers.Run(ctx)
	})

	g.Go(func() error {
		return e.supervisor.Run(ctx)
	})

	err = g.Wait()

	if parent.Err() != nil {
		return parent.Err()
	}

	return err
}
