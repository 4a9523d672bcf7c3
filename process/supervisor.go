package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/cosyne"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	"github.com/vouchsafe/vouchsafe/internal/mlog"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
	"github.com/vouchsafe/vouchsafe/task"
	"github.com/vouchsafe/vouchsafe/timer"
)

// Supervisor owns the set of live process instances and routes messages to
// them.
//
// Each instance processes its mailbox in its own goroutine; the supervisor
// only guards the instance registry itself.
type Supervisor struct {
	// DataStore is the store used to persist instance journals.
	DataStore persistence.DataStore

	// Marshaler marshals application-defined inputs, events and results.
	Marshaler marshalkit.ValueMarshaler

	// Packer produces the journal records written on behalf of instances.
	Packer *journal.Packer

	// Tasks executes the tasks scheduled by instances.
	Tasks *task.Dispatcher

	// Timers fires the timers scheduled by instances.
	Timers *timer.Service

	// Logger is the target for log messages about instance activity.
	Logger logging.Logger

	// HistoryCeiling is the maximum journal length an instance may reach.
	// If it is zero, there is no ceiling.
	HistoryCeiling int

	// MessageTimeout is the deadline applied to each handler invocation. If
	// it is zero, no deadline is applied.
	MessageTimeout time.Duration

	definitions map[string]Definition

	m         cosyne.Mutex
	instances map[string]*instance

	once   sync.Once
	ready  chan struct{}
	runCtx context.Context
	fatal  chan error
}

// RegisterDefinition adds a process definition to the supervisor.
//
// All definitions must be registered before Run() is called. It panics if a
// definition with the same name is already registered.
func (s *Supervisor) RegisterDefinition(def Definition) {
	if s.definitions == nil {
		s.definitions = map[string]Definition{}
	}

	n := def.Name()
	if _, ok := s.definitions[n]; ok {
		panic(fmt.Sprintf("a process definition named %#v is already registered", n))
	}

	s.definitions[n] = def
}

// Run recovers persisted instances, then routes messages until ctx is
// canceled or a fatal persistence error occurs.
func (s *Supervisor) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.fatal = make(chan error, 1)

	if s.instances == nil {
		s.instances = map[string]*instance{}
	}

	if err := s.recover(ctx); err != nil {
		return err
	}

	logging.Log(
		s.Logger,
		mlog.String(
			nil,
			[]mlog.Icon{mlog.SystemIcon},
			fmt.Sprintf("recovered %d process instance(s)", len(s.instances)),
		),
	)

	close(s.readyCh())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.fatal:
		return err
	}
}

// Start creates a new process instance.
//
// It returns an AlreadyExistsError if an instance with the same ID exists,
// live or persisted. It returns once the instance's initial history is
// durably persisted.
func (s *Supervisor) Start(
	ctx context.Context,
	id, processType string,
	input interface{},
) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	def, ok := s.definitions[processType]
	if !ok {
		return UnknownProcessTypeError{ProcessType: processType}
	}

	if err := s.m.Lock(ctx); err != nil {
		return err
	}

	if _, ok := s.instances[id]; ok {
		s.m.Unlock()
		return AlreadyExistsError{InstanceID: id}
	}

	inst := newInstance(id, def, s)
	s.instances[id] = inst
	go inst.run(s.runCtx)

	s.m.Unlock()

	reply := make(chan error, 1)

	if err := inst.enqueue(ctx, &startMessage{input: input, reply: reply}); err != nil {
		return err
	}

	return s.await(ctx, reply)
}

// Signal delivers an external signal to an instance.
//
// It returns once the signal is durably journaled. Signals to an instance in
// a terminal state are accepted but have no effect beyond a diagnostic
// journal entry.
func (s *Supervisor) Signal(
	ctx context.Context,
	id, name string,
	payload interface{},
) error {
	inst, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)

	if err := inst.enqueue(ctx, &signalMessage{name: name, payload: payload, reply: reply}); err != nil {
		return err
	}

	return s.await(ctx, reply)
}

// Query answers a synchronous, side-effect-free query against an instance's
// current state. Queries are answerable at any time, including after the
// instance reaches a terminal state.
func (s *Supervisor) Query(
	ctx context.Context,
	id, name string,
) (interface{}, error) {
	inst, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	reply := make(chan queryReply, 1)

	if err := inst.enqueue(ctx, &queryMessage{name: name, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel moves an instance to the CANCELLED terminal state.
//
// Outstanding tasks, timers and children receive a best-effort stop request;
// their late results are discarded. Canceling an instance that is already
// terminal is an idempotent no-op.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	inst, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)

	if err := inst.enqueue(ctx, &cancelMessage{reply: reply}); err != nil {
		return err
	}

	return s.await(ctx, reply)
}

// Status returns the lifecycle status of an instance.
func (s *Supervisor) Status(ctx context.Context, id string) (Status, error) {
	inst, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	reply := make(chan Status, 1)

	if err := inst.enqueue(ctx, &statusMessage{reply: reply}); err != nil {
		return "", err
	}

	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// DeliverTaskResult routes a task's terminal outcome to the instance that
// scheduled it. It is wired to the dispatcher's Results callback.
func (s *Supervisor) DeliverTaskResult(ctx context.Context, res task.Result) {
	inst, err := s.lookup(ctx, res.InstanceID)
	if err != nil {
		return
	}

	inst.enqueue(ctx, &taskResultMessage{res: res})
}

// DeliverTimerFiring routes a timer firing to the instance that scheduled
// it. It is wired to the timer service's Fired callback.
func (s *Supervisor) DeliverTimerFiring(ctx context.Context, t timer.Timer) {
	inst, err := s.lookup(ctx, t.InstanceID)
	if err != nil {
		return
	}

	inst.enqueue(ctx, &timerFiredMessage{t: t})
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	select {
	case <-s.readyCh():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) readyCh() chan struct{} {
	s.once.Do(func() {
		s.ready = make(chan struct{})
	})

	return s.ready
}

func (s *Supervisor) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) lookup(ctx context.Context, id string) (*instance, error) {
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	if err := s.m.Lock(ctx); err != nil {
		return nil, err
	}
	defer s.m.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, NotFoundError{InstanceID: id}
	}

	return inst, nil
}

// remove unregisters an instance whose start request was rejected before
// anything was journaled.
func (s *Supervisor) remove(id string) {
	if err := s.m.Lock(context.Background()); err != nil {
		return
	}
	defer s.m.Unlock()

	delete(s.instances, id)
}

// reportFatal surfaces an unrecoverable persistence error, stopping the
// supervisor.
func (s *Supervisor) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// startChild creates and starts a child instance on behalf of a parent that
// has journaled a ChildStarted event.
func (s *Supervisor) startChild(
	ctx context.Context,
	parent *instance,
	ev *journal.ChildStarted,
) error {
	def, ok := s.definitions[ev.ProcessType]
	if !ok {
		s.notifyParent(ctx, parent.id, &childResultMessage{
			childID:     ev.ChildID,
			processType: ev.ProcessType,
			failed:      true,
			cause:       fmt.Sprintf("no process definition is registered for %#v", ev.ProcessType),
		})
		return nil
	}

	input, err := parent.unpack(ev.Input)
	if err != nil {
		return err
	}

	if err := s.m.Lock(ctx); err != nil {
		return err
	}

	if _, ok := s.instances[ev.ChildID]; ok {
		// The child already exists, either because recovery rebuilt it or
		// because this is a redundant re-dispatch. Its own lifecycle will
		// notify the parent.
		s.m.Unlock()
		return nil
	}

	inst := newInstance(ev.ChildID, def, s)
	inst.parent = parent.id
	s.instances[ev.ChildID] = inst
	go inst.run(s.runCtx)

	s.m.Unlock()

	// The child's start is acknowledged by its own journal write; the
	// parent does not block on it.
	return inst.enqueue(ctx, &startMessage{input: input})
}

// cancelChild requests cancellation of a child instance without blocking the
// caller. It is used to cascade cancellation from a terminal parent.
func (s *Supervisor) cancelChild(ctx context.Context, childID string) {
	go func() {
		s.Cancel(s.runCtx, childID)
	}()
}

// notifyParent delivers a child's terminal outcome to its parent without
// blocking the caller.
func (s *Supervisor) notifyParent(
	ctx context.Context,
	parentID string,
	m *childResultMessage,
) {
	go func() {
		inst, err := s.lookup(s.runCtx, parentID)
		if err != nil {
			return
		}

		inst.enqueue(s.runCtx, m)
	}()
}
