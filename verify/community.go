package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// CommunityInput starts a community validation pathway.
type CommunityInput struct {
	UserID string

	// RequiredValidators is the number of responses that closes the vote
	// early. Zero means 3.
	RequiredValidators int

	// ValidatorPool is the number of validators invited. Zero means 10.
	ValidatorPool int

	// ResponseWindow is how long validators have to respond before the vote
	// closes with whatever responses arrived. Zero means 72 hours.
	ResponseWindow time.Duration
}

// CommunityResult is the outcome the pathway completes with.
type CommunityResult struct {
	Approved   bool
	Approvals  int
	Rejections int

	// Confidence is the reputation-weighted approval ratio, 0..100.
	Confidence float64

	Evidence CommunityEvidence
}

// ValidatorResponse is the signal payload carrying one validator's vote.
type ValidatorResponse struct {
	ValidatorID string
	Approved    bool
	Comment     string
}

// ValidationProgress answers the validation_progress query.
type ValidationProgress struct {
	Invited    int
	Approvals  int
	Rejections int
	Required   int
	Closed     bool
}

// Events journaled by the community pathway.
type (
	ValidationRequested struct {
		Input CommunityInput
	}

	ValidatorsInvited struct {
		ValidatorIDs []string
	}

	ValidatorResponded struct {
		Response ValidatorResponse
		At       time.Time
	}

	VotingClosed struct {
		TimedOut bool
		At       time.Time
	}

	ConfidenceScored struct {
		Score float64
	}
)

const timerResponses = "validator-responses"

// communityState is the root state of a community pathway instance.
type communityState struct {
	Input      CommunityInput
	Invited    []string
	Approvals  []ValidatorResponse
	Rejections []ValidatorResponse
	Closed     bool
	TimedOut   bool
	ClosedAt   time.Time
	Confidence float64
}

func (c *communityState) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case ValidationRequested:
		c.Input = ev.Input
	case ValidatorsInvited:
		c.Invited = ev.ValidatorIDs
	case ValidatorResponded:
		if ev.Response.Approved {
			c.Approvals = append(c.Approvals, ev.Response)
		} else {
			c.Rejections = append(c.Rejections, ev.Response)
		}
	case VotingClosed:
		c.Closed = true
		c.TimedOut = ev.TimedOut
		c.ClosedAt = ev.At
	case ConfidenceScored:
		c.Confidence = ev.Score
	}
}

func (c *communityState) responded(validatorID string) bool {
	for _, r := range c.Approvals {
		if r.ValidatorID == validatorID {
			return true
		}
	}
	for _, r := range c.Rejections {
		if r.ValidatorID == validatorID {
			return true
		}
	}

	return false
}

// CommunityProcess collects approve/reject votes from community validators.
//
// The vote closes when the required number of responses arrives, or when the
// response window elapses. Confidence is weighted by validator reputation,
// so a rejection from a highly-reputed validator outweighs an approval from
// a newcomer.
type CommunityProcess struct{}

func (CommunityProcess) Name() string {
	return CommunityProcessType
}

func (CommunityProcess) New() process.Root {
	return &communityState{}
}

func (CommunityProcess) HandleStart(
	_ context.Context,
	_ process.Root,
	s process.Scope,
	input interface{},
) error {
	in, ok := input.(CommunityInput)
	if !ok {
		return process.Validationf("unexpected input type %T", input)
	}

	if in.UserID == "" {
		return process.Validationf("a user ID is required")
	}

	if in.RequiredValidators <= 0 {
		in.RequiredValidators = 3
	}
	if in.ValidatorPool <= 0 {
		in.ValidatorPool = 10
	}
	if in.ResponseWindow <= 0 {
		in.ResponseWindow = 72 * time.Hour
	}

	s.RecordEvent(ValidationRequested{Input: in})

	s.ExecuteTask(
		TaskRequestValidators,
		RequestValidatorsRequest{
			UserID:   in.UserID,
			PoolSize: in.ValidatorPool,
		},
		task.Policy{
			MaxAttempts:  1,
			StartToClose: 30 * time.Second,
		},
	)

	s.ScheduleTimer(timerResponses, in.ResponseWindow)

	return nil
}

func (CommunityProcess) HandleSignal(
	_ context.Context,
	r process.Root,
	s process.Scope,
	name string,
	payload interface{},
) error {
	c := r.(*communityState)

	if name != SignalValidatorResponse {
		return process.Validationf("unrecognized signal %#v", name)
	}

	resp, ok := payload.(ValidatorResponse)
	if !ok {
		return process.Validationf("unexpected payload type %T for %#v", payload, name)
	}

	if resp.ValidatorID == "" {
		return process.Validationf("a validator ID is required")
	}
	if c.Closed {
		return process.Validationf("voting has already closed")
	}
	if c.responded(resp.ValidatorID) {
		return process.Validationf("validator %#v has already responded", resp.ValidatorID)
	}

	s.RecordEvent(ValidatorResponded{
		Response: resp,
		At:       time.Now(),
	})

	if len(c.Approvals)+len(c.Rejections) >= c.Input.RequiredValidators {
		closeVoting(s, c, false)
	}

	return nil
}

// closeVoting ends the response window and hands the votes off for
// reputation-weighted aggregation.
func closeVoting(s process.Scope, c *communityState, timedOut bool) {
	s.RecordEvent(VotingClosed{
		TimedOut: timedOut,
		At:       time.Now(),
	})

	s.ExecuteTask(
		TaskAggregateScores,
		AggregateScoresRequest{
			Approvals:  c.Approvals,
			Rejections: c.Rejections,
		},
		task.Policy{
			MaxAttempts:  2,
			StartToClose: 10 * time.Second,
		},
	)
}

func (CommunityProcess) HandleTimer(
	_ context.Context,
	r process.Root,
	s process.Scope,
	t process.Timer,
) error {
	c := r.(*communityState)

	if t.Name == timerResponses && !c.Closed {
		closeVoting(s, c, true)
	}

	return nil
}

func (CommunityProcess) HandleTaskResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	c := r.(*communityState)

	switch res.Name {
	case TaskRequestValidators:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("requesting validators failed: %s", res.Err))
			return nil
		}

		out := res.Output.(ValidatorCandidates)
		if len(out.ValidatorIDs) == 0 {
			s.Fail("no validators are available")
			return nil
		}

		s.RecordEvent(ValidatorsInvited{ValidatorIDs: out.ValidatorIDs})

	case TaskAggregateScores:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("aggregating validator scores failed: %s", res.Err))
			return nil
		}

		out := res.Output.(ValidationConfidence)
		s.RecordEvent(ConfidenceScored{Score: out.Score})

		s.ExecuteTask(
			TaskStoreEvidence,
			StoreEvidenceRequest{
				UserID:   c.Input.UserID,
				Pathway:  MethodCommunity,
				Evidence: Evidence{Community: c.evidence()},
			},
			task.Policy{
				MaxAttempts:  3,
				StartToClose: 10 * time.Second,
			},
		)

	case TaskStoreEvidence:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("storing community evidence failed: %s", res.Err))
			return nil
		}

		// Approval is by majority of the responses that arrived; the
		// required count only determines when the vote closes.
		s.Complete(CommunityResult{
			Approved:   len(c.Approvals) > len(c.Rejections),
			Approvals:  len(c.Approvals),
			Rejections: len(c.Rejections),
			Confidence: c.Confidence,
			Evidence:   *c.evidence(),
		})
	}

	return nil
}

func (c *communityState) evidence() *CommunityEvidence {
	return &CommunityEvidence{
		ValidatorsInvited: len(c.Invited),
		Approvals:         len(c.Approvals),
		Rejections:        len(c.Rejections),
		Required:          c.Input.RequiredValidators,
		TimedOut:          c.TimedOut,
		ClosedAt:          c.ClosedAt,
	}
}

func (CommunityProcess) HandleChildResult(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	_ process.ChildResult,
) error {
	return nil
}

func (CommunityProcess) HandleQuery(r process.Root, name string) (interface{}, error) {
	c := r.(*communityState)

	if name == QueryValidationProgress {
		return ValidationProgress{
			Invited:    len(c.Invited),
			Approvals:  len(c.Approvals),
			Rejections: len(c.Rejections),
			Required:   c.Input.RequiredValidators,
			Closed:     c.Closed,
		}, nil
	}

	return nil, UnknownQueryError{Query: name}
}
