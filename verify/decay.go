package verify

import (
	"context"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// DecayInput starts (or continues) a reputation decay loop.
type DecayInput struct {
	UserID string

	// Interval is the sleep between decay cycles. Zero means
	// DefaultDecayInterval.
	Interval time.Duration

	// MaxIterations bounds the loop. Zero means DefaultDecayIterations.
	MaxIterations int

	// Iteration is the number of cycles already performed. It is carried
	// forward across continuations.
	Iteration int

	// Reputation is the last known reputation, carried forward across
	// continuations.
	Reputation float64
}

// DecayResult is the outcome the decay loop completes with.
type DecayResult struct {
	UserID          string
	Iterations      int
	FinalReputation float64

	// StoppedReason is "max_iterations" or "cancelled".
	StoppedReason string
}

// CancelDecay is the signal payload that stops the decay loop.
type CancelDecay struct {
	Reason string
}

// Events journaled by the decay process.
type (
	DecayCycleStarted struct {
		Input DecayInput
	}

	ReputationDecayed struct {
		Reputation float64
	}

	DecayCancelled struct {
		Reason string
	}
)

const timerDecay = "decay-interval"

// decayState is the root state of a decay loop instance.
type decayState struct {
	Input      DecayInput
	Reputation float64
	Cancelled  bool
	Reason     string
}

func (d *decayState) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case DecayCycleStarted:
		d.Input = ev.Input
		d.Reputation = ev.Input.Reputation
	case ReputationDecayed:
		d.Reputation = ev.Reputation
		d.Input.Iteration++
	case DecayCancelled:
		d.Cancelled = true
		d.Reason = ev.Reason
	}
}

// DecayProcess periodically reduces a user's reputation.
//
// The loop runs for years at one cycle per interval, so it continues into a
// fresh history on every cycle rather than accumulating one journal entry
// per month for a decade. Only the iteration count and last reputation are
// carried across the continuation.
type DecayProcess struct{}

func (DecayProcess) Name() string {
	return DecayProcessType
}

func (DecayProcess) New() process.Root {
	return &decayState{}
}

func (DecayProcess) HandleStart(
	_ context.Context,
	_ process.Root,
	s process.Scope,
	input interface{},
) error {
	in, ok := input.(DecayInput)
	if !ok {
		return process.Validationf("unexpected input type %T", input)
	}

	if in.UserID == "" {
		return process.Validationf("a user ID is required")
	}

	if in.Interval <= 0 {
		in.Interval = DefaultDecayInterval
	}
	if in.MaxIterations <= 0 {
		in.MaxIterations = DefaultDecayIterations
	}

	s.RecordEvent(DecayCycleStarted{Input: in})
	s.ScheduleTimer(timerDecay, in.Interval)

	return nil
}

func (DecayProcess) HandleSignal(
	_ context.Context,
	r process.Root,
	s process.Scope,
	name string,
	payload interface{},
) error {
	d := r.(*decayState)

	if name != SignalCancelDecay {
		return process.Validationf("unrecognized signal %#v", name)
	}

	reason := "cancelled"
	if c, ok := payload.(CancelDecay); ok && c.Reason != "" {
		reason = c.Reason
	}

	s.RecordEvent(DecayCancelled{Reason: reason})

	s.Complete(DecayResult{
		UserID:          d.Input.UserID,
		Iterations:      d.Input.Iteration,
		FinalReputation: d.Reputation,
		StoppedReason:   "cancelled",
	})

	return nil
}

func (DecayProcess) HandleTimer(
	_ context.Context,
	r process.Root,
	s process.Scope,
	t process.Timer,
) error {
	d := r.(*decayState)

	if t.Name != timerDecay {
		return nil
	}

	s.ExecuteTask(
		TaskDecayReputation,
		DecayReputationRequest{
			UserID:  d.Input.UserID,
			Percent: DecayPercent,
		},
		task.Policy{
			MaxAttempts:  5,
			StartToClose: 1 * time.Minute,
			BackoffMin:   1 * time.Second,
			BackoffMax:   30 * time.Second,
		},
	)

	return nil
}

func (DecayProcess) HandleTaskResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	d := r.(*decayState)

	if res.Name != TaskDecayReputation {
		return nil
	}

	if res.Err != nil {
		// Skip this cycle; the reputation store was unreachable even after
		// retries. The next interval tries again.
		s.Log("reputation decay failed after %d attempt(s): %s", res.Attempts, res.Err)
		s.ScheduleTimer(timerDecay, d.Input.Interval)
		return nil
	}

	out := res.Output.(ReputationScore)
	s.RecordEvent(ReputationDecayed{Reputation: out.Value})

	if d.Input.Iteration >= d.Input.MaxIterations {
		s.Complete(DecayResult{
			UserID:          d.Input.UserID,
			Iterations:      d.Input.Iteration,
			FinalReputation: d.Reputation,
			StoppedReason:   "max_iterations",
		})
		return nil
	}

	s.ContinueAsNew(DecayInput{
		UserID:        d.Input.UserID,
		Interval:      d.Input.Interval,
		MaxIterations: d.Input.MaxIterations,
		Iteration:     d.Input.Iteration,
		Reputation:    d.Reputation,
	})

	return nil
}

// ContinuationInput carries the loop position forward if the engine forces a
// continuation before the cycle's own ContinueAsNew.
func (DecayProcess) ContinuationInput(r process.Root) interface{} {
	d := r.(*decayState)

	return DecayInput{
		UserID:        d.Input.UserID,
		Interval:      d.Input.Interval,
		MaxIterations: d.Input.MaxIterations,
		Iteration:     d.Input.Iteration,
		Reputation:    d.Reputation,
	}
}

func (DecayProcess) HandleChildResult(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	_ process.ChildResult,
) error {
	return nil
}

func (DecayProcess) HandleQuery(r process.Root, name string) (interface{}, error) {
	d := r.(*decayState)

	switch name {
	case QueryCurrentReputation:
		return d.Reputation, nil
	case QueryIsCancelled:
		return d.Cancelled, nil
	case QueryIteration:
		return d.Input.Iteration, nil
	}

	return nil, UnknownQueryError{Query: name}
}
