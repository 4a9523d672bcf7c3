package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/marshalkit"
	"github.com/vouchsafe/vouchsafe/internal/mlog"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/task"
	"github.com/vouchsafe/vouchsafe/timer"
)

// errStopped is a sentinel used to end an instance's run loop without
// reporting a fatal engine error.
var errStopped = errors.New("instance stopped")

// message is a unit of work delivered to an instance's mailbox. Messages are
// processed strictly one at a time, so the instance's state needs no
// internal locking.
type message interface{}

type startMessage struct {
	input interface{}
	reply chan<- error
}

type signalMessage struct {
	name    string
	payload interface{}
	reply   chan<- error
}

type queryMessage struct {
	name  string
	reply chan<- queryReply
}

type queryReply struct {
	value interface{}
	err   error
}

type statusMessage struct {
	reply chan<- Status
}

type cancelMessage struct {
	reply chan<- error
}

type taskResultMessage struct {
	res task.Result
}

type timerFiredMessage struct {
	t timer.Timer
}

type childResultMessage struct {
	childID     string
	processType string
	result      marshalkit.Packet
	failed      bool
	cause       string
}

// continueMessage completes a continuation that was journaled but not yet
// applied when the engine last stopped.
type continueMessage struct {
	input marshalkit.Packet
}

// instance is a single process instance. Its mutable state is owned
// exclusively by the run() goroutine.
type instance struct {
	id  string
	def Definition
	sup *Supervisor

	mailbox chan message

	marshaler marshalkit.ValueMarshaler
	packer    *journal.Packer
	logger    logging.Logger

	root      Root
	status    Status
	iteration uint64
	gen       uint64
	next      uint64
	parent    string

	// resultPacket is the result the instance completed with, retained to
	// notify the parent and answer late recovery reconciliation.
	resultPacket marshalkit.Packet

	// failure is the cause recorded by ProcessFailed.
	failure string

	tasks    map[string]*journal.TaskScheduled
	timers   map[string]*journal.TimerScheduled
	children map[string]*journal.ChildStarted

	// lastRecord is the most recently journaled record, used as the cause
	// of records produced outside any handler invocation.
	lastRecord *journal.Record
}

func newInstance(id string, def Definition, sup *Supervisor) *instance {
	return &instance{
		id:        id,
		def:       def,
		sup:       sup,
		mailbox:   make(chan message, 128),
		marshaler: sup.Marshaler,
		packer:    sup.Packer,
		logger:    sup.Logger,
		root:      def.New(),
		tasks:     map[string]*journal.TaskScheduled{},
		timers:    map[string]*journal.TimerScheduled{},
		children:  map[string]*journal.ChildStarted{},
	}
}

// run processes the instance's mailbox until ctx is canceled or a fatal
// persistence error occurs.
func (i *instance) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-i.mailbox:
			if err := i.dispatch(ctx, m); err != nil {
				if err != errStopped {
					i.sup.reportFatal(err)
				}
				return
			}
		}
	}
}

// enqueue delivers a message to the instance's mailbox.
func (i *instance) enqueue(ctx context.Context, m message) error {
	select {
	case i.mailbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *instance) dispatch(ctx context.Context, m message) error {
	switch m := m.(type) {
	case *startMessage:
		return i.handleStart(ctx, m)
	case *signalMessage:
		return i.handleSignal(ctx, m)
	case *queryMessage:
		return i.handleQuery(m)
	case *statusMessage:
		select {
		case m.reply <- i.status:
		default:
		}
		return nil
	case *cancelMessage:
		return i.handleCancel(ctx, m)
	case *taskResultMessage:
		return i.handleTaskResult(ctx, m)
	case *timerFiredMessage:
		return i.handleTimerFired(ctx, m)
	case *childResultMessage:
		return i.handleChildResult(ctx, m)
	case *continueMessage:
		return i.handleContinue(ctx, m)
	default:
		panic(fmt.Sprintf("unrecognized message type %T", m))
	}
}

func (i *instance) handleStart(ctx context.Context, m *startMessage) error {
	cause := i.packer.Pack(&journal.ProcessStarted{
		ProcessType: i.def.Name(),
		Parent:      i.parent,
		Iteration:   0,
		Input:       i.pack(m.input),
	})

	i.status = StatusRunning

	s := &scope{inst: i, cause: cause}
	err := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleStart(hctx, i.root, s, m.input)
	})

	if rejected(s, err) {
		// Nothing was journaled; the instance never existed. Unregister it
		// and end the goroutine.
		i.sup.remove(i.id)
		reply(m.reply, err)
		return errStopped
	}

	return i.commit(ctx, cause, s, err, m.reply)
}

func (i *instance) handleSignal(ctx context.Context, m *signalMessage) error {
	if i.status.IsTerminal() {
		return i.discardSignal(ctx, m)
	}

	cause := i.packer.Pack(&journal.SignalReceived{
		Name:    m.name,
		Payload: i.pack(m.payload),
	})

	s := &scope{inst: i, cause: cause}
	err := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleSignal(hctx, i.root, s, m.name, m.payload)
	})

	if rejected(s, err) {
		reply(m.reply, err)
		return nil
	}

	return i.commit(ctx, cause, s, err, m.reply)
}

// discardSignal journals a diagnostic event for a signal that arrived after
// the instance reached a terminal state. The signal is accepted but has no
// effect; it never reopens the process.
func (i *instance) discardSignal(ctx context.Context, m *signalMessage) error {
	// Suppress the diagnostic once the ceiling is reached, so that a noisy
	// caller cannot grow a terminal instance's history without bound.
	if i.sup.HistoryCeiling > 0 && i.next >= uint64(i.sup.HistoryCeiling) {
		reply(m.reply, nil)
		return nil
	}

	rec := i.packer.Pack(&journal.SignalDiscarded{
		Name:   m.name,
		Reason: fmt.Sprintf("process is %s", i.status),
	})

	if err := i.append(ctx, []*journal.Record{rec}); err != nil {
		reply(m.reply, err)
		return err
	}

	i.logRecord(rec)
	reply(m.reply, nil)

	return nil
}

func (i *instance) handleQuery(m *queryMessage) error {
	v, err := i.def.HandleQuery(i.root, m.name)

	select {
	case m.reply <- queryReply{value: v, err: err}:
	default:
	}

	return nil
}

func (i *instance) handleCancel(ctx context.Context, m *cancelMessage) error {
	if i.status.IsTerminal() {
		// Cancellation of a terminal instance is an idempotent no-op.
		reply(m.reply, nil)
		return nil
	}

	rec := i.packer.Pack(&journal.ProcessCanceled{})

	if err := i.append(ctx, []*journal.Record{rec}); err != nil {
		reply(m.reply, err)
		return err
	}

	i.applyEvent(rec.Event, false)
	i.logRecord(rec)

	if err := i.perform(ctx, rec); err != nil {
		return err
	}

	reply(m.reply, nil)

	return nil
}

func (i *instance) handleTaskResult(ctx context.Context, m *taskResultMessage) error {
	pending, ok := i.tasks[m.res.TaskID]
	if !ok || i.status.IsTerminal() {
		// A late result, delivered after cancellation or after recovery
		// already reconciled the task. It is discarded, never reapplied.
		return nil
	}

	var cause *journal.Record
	res := TaskResult{
		TaskID:   m.res.TaskID,
		Name:     pending.Name,
		Output:   m.res.Output,
		Err:      m.res.Err,
		Attempts: m.res.Attempts,
	}

	if m.res.Err != nil {
		cause = i.packer.Pack(&journal.TaskFailed{
			TaskID:   m.res.TaskID,
			Cause:    m.res.Err.Error(),
			Attempts: m.res.Attempts,
		})
	} else {
		cause = i.packer.Pack(&journal.TaskCompleted{
			TaskID:   m.res.TaskID,
			Result:   i.pack(m.res.Output),
			Attempts: m.res.Attempts,
		})
	}

	s := &scope{inst: i, cause: cause}
	err := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleTaskResult(hctx, i.root, s, res)
	})

	return i.commit(ctx, cause, s, err, nil)
}

func (i *instance) handleTimerFired(ctx context.Context, m *timerFiredMessage) error {
	pending, ok := i.timers[m.t.TimerID]
	if !ok || i.status.IsTerminal() {
		return nil
	}

	cause := i.packer.Pack(&journal.TimerFired{
		TimerID: m.t.TimerID,
	})

	t := Timer{
		TimerID: m.t.TimerID,
		Name:    pending.Name,
	}

	s := &scope{inst: i, cause: cause}
	err := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleTimer(hctx, i.root, s, t)
	})

	return i.commit(ctx, cause, s, err, nil)
}

func (i *instance) handleChildResult(ctx context.Context, m *childResultMessage) error {
	_, ok := i.children[m.childID]
	if !ok || i.status.IsTerminal() {
		return nil
	}

	var (
		cause *journal.Record
		res   ChildResult
	)

	res.ChildID = m.childID
	res.ProcessType = m.processType

	if m.failed {
		cause = i.packer.Pack(&journal.ChildFailed{
			ChildID: m.childID,
			Cause:   m.cause,
		})
		res.Err = errors.New(m.cause)
	} else {
		cause = i.packer.Pack(&journal.ChildCompleted{
			ChildID: m.childID,
			Result:  m.result,
		})

		v, err := i.unpack(m.result)
		if err != nil {
			return err
		}
		res.Output = v
	}

	s := &scope{inst: i, cause: cause}
	err := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleChildResult(hctx, i.root, s, res)
	})

	return i.commit(ctx, cause, s, err, nil)
}

func (i *instance) handleContinue(ctx context.Context, m *continueMessage) error {
	input, err := i.unpack(m.input)
	if err != nil {
		return err
	}

	return i.continueAsNew(ctx, i.lastRecord, input)
}

// handle invokes a definition handler with the supervisor's per-message
// timeout applied.
func (i *instance) handle(ctx context.Context, fn func(ctx context.Context) error) error {
	hctx, cancel := linger.ContextWithTimeout(ctx, i.sup.MessageTimeout)
	defer cancel()

	return fn(hctx)
}

// rejected reports whether a handler error can be treated as a clean
// rejection, leaving the journal untouched.
func rejected(s *scope, err error) bool {
	if err == nil {
		return false
	}

	var verr ValidationError
	return errors.As(err, &verr) && !s.mutated
}

// commit journals the cause record and the handler's effects atomically,
// then performs their side effects.
//
// A handler error that is not a clean rejection moves the instance to the
// FAILED state; effects recorded before the error are preserved so that the
// journal matches the root's state.
func (i *instance) commit(
	ctx context.Context,
	cause *journal.Record,
	s *scope,
	handlerErr error,
	replyTo chan<- error,
) error {
	records := append([]*journal.Record{cause}, s.effects...)

	if handlerErr != nil && !s.closed {
		records = append(
			records,
			i.packer.PackCausedBy(cause, &journal.ProcessFailed{
				Cause: handlerErr.Error(),
			}),
		)
	}

	if err := i.append(ctx, records); err != nil {
		reply(replyTo, err)
		return err
	}

	for _, rec := range records {
		i.applyEvent(rec.Event, false)
		i.logRecord(rec)
	}

	reply(replyTo, handlerErr)

	for _, rec := range records {
		if err := i.perform(ctx, rec); err != nil {
			return err
		}
	}

	if s.continued {
		return i.continueAsNew(ctx, cause, s.continueInput)
	}

	return i.enforceCeiling(ctx)
}

// append persists a batch of records at the instance's current journal
// position.
func (i *instance) append(ctx context.Context, records []*journal.Record) error {
	err := i.sup.DataStore.AppendRecords(ctx, i.id, i.gen, i.next, records)
	if err != nil {
		return err
	}

	for n, rec := range records {
		rec.Offset = i.next + uint64(n)
	}

	i.next += uint64(len(records))
	i.lastRecord = records[len(records)-1]

	return nil
}

// applyEvent updates the instance's bookkeeping to reflect an event.
//
// If replay is true, application-defined events are also applied to the
// root. During live execution the root has already been mutated by
// RecordEvent().
func (i *instance) applyEvent(ev journal.Event, replay bool) error {
	switch ev := ev.(type) {
	case *journal.ProcessStarted:
		i.status = StatusRunning
		i.iteration = ev.Iteration
		i.parent = ev.Parent

	case *journal.StateModified:
		if replay {
			v, err := i.unpack(ev.Event)
			if err != nil {
				return err
			}
			i.root.ApplyEvent(v)
		}

	case *journal.TaskScheduled:
		i.tasks[ev.TaskID] = ev
	case *journal.TaskCompleted:
		delete(i.tasks, ev.TaskID)
	case *journal.TaskFailed:
		delete(i.tasks, ev.TaskID)

	case *journal.TimerScheduled:
		i.timers[ev.TimerID] = ev
	case *journal.TimerFired:
		delete(i.timers, ev.TimerID)
	case *journal.TimerCanceled:
		delete(i.timers, ev.TimerID)

	case *journal.ChildStarted:
		i.children[ev.ChildID] = ev
	case *journal.ChildCompleted:
		delete(i.children, ev.ChildID)
	case *journal.ChildFailed:
		delete(i.children, ev.ChildID)

	case *journal.ProcessCompleted:
		i.status = StatusCompleted
		i.resultPacket = ev.Result
	case *journal.ProcessCanceled:
		i.status = StatusCancelled
	case *journal.ProcessTimedOut:
		i.status = StatusTimedOut
	case *journal.ProcessFailed:
		i.status = StatusFailed
		i.failure = ev.Cause
	}

	return nil
}

// perform executes the live side effect implied by a freshly journaled
// record.
func (i *instance) perform(ctx context.Context, rec *journal.Record) error {
	switch ev := rec.Event.(type) {
	case *journal.TaskScheduled:
		input, err := i.unpack(ev.Input)
		if err != nil {
			return err
		}

		return i.sup.Tasks.Dispatch(ctx, task.Request{
			TaskID:     ev.TaskID,
			InstanceID: i.id,
			Name:       ev.Name,
			Input:      input,
			Policy:     ev.Policy,
		})

	case *journal.TimerScheduled:
		i.sup.Timers.Schedule(timer.Timer{
			TimerID:    ev.TimerID,
			InstanceID: i.id,
			Name:       ev.Name,
			FireAt:     ev.FireAt,
		})

	case *journal.TimerCanceled:
		i.sup.Timers.Cancel(ev.TimerID)

	case *journal.ChildStarted:
		return i.sup.startChild(ctx, i, ev)

	case *journal.ProcessCompleted,
		*journal.ProcessCanceled,
		*journal.ProcessTimedOut,
		*journal.ProcessFailed:
		return i.shutdownEffects(ctx)
	}

	return nil
}

// shutdownEffects stops outstanding work when the instance reaches a
// terminal state, and notifies the parent, if any.
//
// Stopping is best-effort and cooperative. Late task or child results are
// discarded by the pending-set checks in the message handlers.
func (i *instance) shutdownEffects(ctx context.Context) error {
	i.sup.Tasks.CancelInstance(i.id)
	i.sup.Timers.CancelInstance(i.id)

	for childID := range i.children {
		i.sup.cancelChild(ctx, childID)
	}

	if i.parent != "" {
		m := &childResultMessage{
			childID:     i.id,
			processType: i.def.Name(),
		}

		if i.status == StatusCompleted {
			m.result = i.resultPacket
		} else {
			m.failed = true
			m.cause = i.terminalCause()
		}

		i.sup.notifyParent(ctx, i.parent, m)
	}

	return nil
}

// terminalCause describes why the instance ended, for consumption by the
// parent process.
func (i *instance) terminalCause() string {
	if i.status == StatusFailed && i.failure != "" {
		return i.failure
	}

	return fmt.Sprintf("process is %s", i.status)
}

// continueAsNew discards the instance's history and begins a fresh
// generation, re-entering HandleStart() with the continuation input.
func (i *instance) continueAsNew(
	ctx context.Context,
	cause *journal.Record,
	input interface{},
) error {
	// Outstanding work belongs to the generation being discarded.
	i.sup.Tasks.CancelInstance(i.id)
	i.sup.Timers.CancelInstance(i.id)

	i.iteration++
	i.gen++
	i.root = i.def.New()
	i.status = StatusRunning
	i.tasks = map[string]*journal.TaskScheduled{}
	i.timers = map[string]*journal.TimerScheduled{}
	i.children = map[string]*journal.ChildStarted{}

	start := i.packer.PackCausedBy(cause, &journal.ProcessStarted{
		ProcessType: i.def.Name(),
		Parent:      i.parent,
		Iteration:   i.iteration,
		Input:       i.pack(input),
	})

	s := &scope{inst: i, cause: start}
	handlerErr := i.handle(ctx, func(hctx context.Context) error {
		return i.def.HandleStart(hctx, i.root, s, input)
	})

	records := append([]*journal.Record{start}, s.effects...)

	if handlerErr != nil && !s.closed {
		records = append(
			records,
			i.packer.PackCausedBy(start, &journal.ProcessFailed{
				Cause: handlerErr.Error(),
			}),
		)
	}

	if err := i.sup.DataStore.ResetJournal(ctx, i.id, i.gen, records); err != nil {
		return err
	}

	i.next = uint64(len(records))
	i.lastRecord = records[len(records)-1]

	for n, rec := range records {
		rec.Offset = uint64(n)
		i.applyEvent(rec.Event, false)
		i.logRecord(rec)
	}

	for _, rec := range records {
		if err := i.perform(ctx, rec); err != nil {
			return err
		}
	}

	if s.continued {
		return i.continueAsNew(ctx, start, s.continueInput)
	}

	return i.enforceCeiling(ctx)
}

// enforceCeiling guarantees the history ceiling is never crossed. When the
// journal reaches the ceiling, a continuable instance is restarted with a
// fresh history; any other instance is failed.
func (i *instance) enforceCeiling(ctx context.Context) error {
	if i.sup.HistoryCeiling <= 0 || i.next < uint64(i.sup.HistoryCeiling) {
		return nil
	}

	if i.status.IsTerminal() {
		return nil
	}

	cause := i.lastRecord

	if c, ok := i.def.(Continuable); ok {
		input := c.ContinuationInput(i.root)

		rec := i.packer.PackCausedBy(cause, &journal.ProcessContinued{
			Iteration: i.iteration + 1,
			Input:     i.pack(input),
		})

		if err := i.append(ctx, []*journal.Record{rec}); err != nil {
			return err
		}

		i.logRecord(rec)

		return i.continueAsNew(ctx, rec, input)
	}

	rec := i.packer.PackCausedBy(cause, &journal.ProcessFailed{
		Cause: "history ceiling reached",
	})

	if err := i.append(ctx, []*journal.Record{rec}); err != nil {
		return err
	}

	i.applyEvent(rec.Event, false)
	i.logRecord(rec)

	return i.perform(ctx, rec)
}

// replay reconstructs the instance's state from its journal. No handlers
// are executed and no side effects are performed.
func (i *instance) replay(gen uint64, records []*journal.Record) error {
	i.gen = gen

	for _, rec := range records {
		if err := i.applyEvent(rec.Event, true); err != nil {
			return err
		}

		i.lastRecord = rec
	}

	i.next = uint64(len(records))

	return nil
}

func (i *instance) pack(v interface{}) marshalkit.Packet {
	if v == nil {
		return marshalkit.Packet{}
	}

	return marshalkit.MustMarshal(i.marshaler, v)
}

func (i *instance) unpack(p marshalkit.Packet) (interface{}, error) {
	if p.MediaType == "" {
		return nil, nil
	}

	return i.marshaler.Unmarshal(p)
}

func (i *instance) newID() string {
	return i.packer.NewID()
}

func (i *instance) logRecord(rec *journal.Record) {
	logging.Log(
		i.logger,
		mlog.String(
			[]mlog.IconWithLabel{
				mlog.RecordIDIcon.WithID(rec.RecordID),
				mlog.CausationIDIcon.WithID(rec.CausationID),
				mlog.CorrelationIDIcon.WithID(rec.CorrelationID),
			},
			[]mlog.Icon{mlog.ProduceIcon, mlog.ProcessIcon},
			i.id,
			rec.Event.Kind(),
		),
	)
}

// reply delivers err to ch, if there is a channel to reply to.
func reply(ch chan<- error, err error) {
	if ch == nil {
		return
	}

	select {
	case ch <- err:
	default:
	}
}
