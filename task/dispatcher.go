package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/vouchsafe/vouchsafe/internal/mlog"
	"github.com/vouchsafe/vouchsafe/semaphore"
)

// Request describes a task enqueued for execution on behalf of a process
// instance.
type Request struct {
	// TaskID uniquely identifies the task across all instances.
	TaskID string

	// InstanceID is the ID of the process instance that scheduled the task.
	InstanceID string

	// Name is the name of the handler to execute, as registered with the
	// dispatcher's registry.
	Name string

	// Input is the unmarshaled task input.
	Input interface{}

	// Policy controls retries, timeouts and stall detection.
	Policy Policy
}

// Result is the terminal outcome of a request. Exactly one result is
// produced per request, regardless of how many attempts were made.
type Result struct {
	TaskID     string
	InstanceID string

	// Output is the value returned by the handler. It is nil if Err is
	// non-nil.
	Output interface{}

	// Err is the error that caused the task to fail, or nil on success.
	Err error

	// Attempts is the number of attempts that were made.
	Attempts int
}

// Dispatcher executes tasks against a registry of handlers, applying each
// request's retry policy.
//
// Concurrency is bounded by the semaphore. Results are delivered via the
// Results callback, which is invoked from the task's goroutine.
type Dispatcher struct {
	// Handlers is the set of known task handlers.
	Handlers *Registry

	// Semaphore limits the number of concurrently executing attempts.
	Semaphore semaphore.Semaphore

	// Defaults is the policy applied where a request's policy leaves a
	// field unset.
	Defaults Policy

	// Results is called with the terminal outcome of each request. It is
	// not called for requests canceled via CancelInstance().
	Results func(ctx context.Context, res Result)

	// Logger is the target for log messages about task execution.
	Logger logging.Logger

	m       sync.Mutex
	pending map[string]map[string]context.CancelFunc
}

// Dispatch begins asynchronous execution of req.
//
// The returned error is always nil unless ctx is already canceled; it exists
// so callers can treat dispatch like other context-aware operations.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	taskCtx, cancel := context.WithCancel(ctx)

	d.m.Lock()
	if d.pending == nil {
		d.pending = map[string]map[string]context.CancelFunc{}
	}
	byTask := d.pending[req.InstanceID]
	if byTask == nil {
		byTask = map[string]context.CancelFunc{}
		d.pending[req.InstanceID] = byTask
	}
	byTask[req.TaskID] = cancel
	d.m.Unlock()

	go d.run(ctx, taskCtx, req)

	return nil
}

// CancelInstance abandons all in-flight tasks belonging to the given process
// instance. Their results are discarded.
func (d *Dispatcher) CancelInstance(id string) {
	d.m.Lock()
	byTask := d.pending[id]
	delete(d.pending, id)
	d.m.Unlock()

	for _, cancel := range byTask {
		cancel()
	}
}

// run executes req to completion then delivers its result, unless the
// request was canceled in the meantime.
func (d *Dispatcher) run(ctx, taskCtx context.Context, req Request) {
	res := d.execute(taskCtx, req)

	// The request may have been canceled while the final attempt was in
	// flight. Resolving it atomically with delivery ensures that a late
	// result never reaches a canceled instance.
	if !d.resolve(req) {
		return
	}

	if d.Results != nil {
		d.Results(ctx, res)
	}
}

// resolve removes req from the pending set. It returns false if the request
// was already removed by CancelInstance().
func (d *Dispatcher) resolve(req Request) bool {
	d.m.Lock()
	defer d.m.Unlock()

	byTask, ok := d.pending[req.InstanceID]
	if !ok {
		return false
	}

	if _, ok := byTask[req.TaskID]; !ok {
		return false
	}

	delete(byTask, req.TaskID)
	if len(byTask) == 0 {
		delete(d.pending, req.InstanceID)
	}

	return true
}

func (d *Dispatcher) execute(ctx context.Context, req Request) Result {
	res := Result{
		TaskID:     req.TaskID,
		InstanceID: req.InstanceID,
	}

	h, ok := d.Handlers.HandlerByName(req.Name)
	if !ok {
		res.Err = fmt.Errorf("no handler is registered for %#v tasks", req.Name)
		return res
	}

	p := req.Policy.Merge(d.Defaults).WithDefaults()

	if err := d.acquire(ctx, p); err != nil {
		res.Err = err
		return res
	}
	defer d.Semaphore.Release()

	counter := &backoff.Counter{
		Strategy: p.Strategy(),
	}

	hb := &Heartbeat{}

	for {
		res.Attempts++
		d.logAttempt(req, res.Attempts)

		out, stalled, err := d.attempt(ctx, h, hb, p, req)
		if err == nil {
			res.Output = out
			return res
		}

		d.logFailure(req, res.Attempts, err)

		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}

		if isAbort(err) {
			res.Err = err
			return res
		}

		if p.MaxAttempts > 0 && res.Attempts >= p.MaxAttempts {
			res.Err = err
			return res
		}

		if stalled {
			// A stalled attempt is retried immediately. The handler picks
			// up from the last recorded progress token.
			counter.Reset()
			continue
		}

		if err := counter.Sleep(ctx, err); err != nil {
			res.Err = err
			return res
		}
	}
}

// acquire obtains a worker slot, honoring the policy's schedule-to-start
// deadline.
func (d *Dispatcher) acquire(ctx context.Context, p Policy) error {
	acquireCtx := ctx

	if p.ScheduleToStart > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.ScheduleToStart)
		defer cancel()
	}

	if err := d.Semaphore.Acquire(acquireCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf(
			"task did not start within its %s schedule-to-start window",
			p.ScheduleToStart,
		)
	}

	return nil
}

// attempt makes a single attempt at executing the task, enforcing the
// start-to-close deadline and heartbeat stall detection.
func (d *Dispatcher) attempt(
	ctx context.Context,
	h Handler,
	hb *Heartbeat,
	p Policy,
	req Request,
) (out interface{}, stalled bool, err error) {
	ctx, cancel := linger.ContextWithTimeout(ctx, p.StartToClose)
	defer cancel()

	hb.reset()

	var stalledCh chan struct{}
	if p.HeartbeatInterval > 0 {
		stalledCh = make(chan struct{})
		go d.monitor(ctx, hb, p.HeartbeatInterval, stalledCh, cancel)
	}

	out, err = h(ctx, hb, req.Input)
	if err != nil && stalledCh != nil {
		select {
		case <-stalledCh:
			stalled = true
		default:
		}
	}

	if err != nil {
		return nil, stalled, err
	}

	return out, false, nil
}

// monitor cancels the attempt if no heartbeat arrives within the given
// interval. It signals the stall by closing stalledCh before canceling.
func (d *Dispatcher) monitor(
	ctx context.Context,
	hb *Heartbeat,
	interval time.Duration,
	stalledCh chan struct{},
	cancel context.CancelFunc,
) {
	for {
		remaining := interval - hb.since()

		if remaining <= 0 {
			close(stalledCh)
			cancel()
			return
		}

		if err := linger.Sleep(ctx, remaining); err != nil {
			return
		}
	}
}

func (d *Dispatcher) logAttempt(req Request, n int) {
	icon := mlog.ConsumeIcon
	if n > 1 {
		icon = mlog.RetryIcon
	}

	logging.Log(
		d.Logger,
		mlog.String(
			[]mlog.IconWithLabel{
				mlog.RecordIDIcon.WithID(req.TaskID),
				mlog.CorrelationIDIcon.WithID(req.InstanceID),
			},
			[]mlog.Icon{icon},
			req.Name,
			fmt.Sprintf("attempt #%d", n),
		),
	)
}

func (d *Dispatcher) logFailure(req Request, n int, err error) {
	logging.Log(
		d.Logger,
		mlog.String(
			[]mlog.IconWithLabel{
				mlog.RecordIDIcon.WithID(req.TaskID),
				mlog.CorrelationIDIcon.WithID(req.InstanceID),
			},
			[]mlog.Icon{mlog.ConsumeErrorIcon, mlog.ErrorIcon},
			req.Name,
			fmt.Sprintf("attempt #%d failed", n),
			err.Error(),
		),
	)
}
