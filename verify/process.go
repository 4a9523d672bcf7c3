package verify

import (
	"context"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// Input starts a verification.
type Input struct {
	// UserID identifies the user being verified.
	UserID string

	// TargetScore is the score at which the verification completes. It is
	// clamped to MaxScore; zero means DefaultTargetScore.
	TargetScore float64

	// Deadline is how long the verification may run before it times out.
	// Zero means DefaultDeadline.
	Deadline time.Duration

	// InitialMethods names the pathways to start immediately as child
	// processes.
	InitialMethods []string
}

// Result is the outcome of a completed verification.
type Result struct {
	UserID      string
	FinalScore  float64
	Methods     []Method
	CompletedAt time.Time
}

// Method is one completed verification method and its contribution to the
// score.
type Method struct {
	// Method is one of the Method* constants.
	Method string

	// Weight is the raw, uncapped contribution of this method. The capped
	// score is always recomputed from the full method list, never stored.
	Weight float64

	Evidence    Evidence
	CompletedAt time.Time
}

// CompleteMethod is the signal payload that records an externally-completed
// verification method.
type CompleteMethod struct {
	Method   string
	Weight   float64
	Evidence Evidence
}

// Events journaled by the verification process.
type (
	// VerificationStarted captures the (defaulted) start parameters.
	VerificationStarted struct {
		UserID      string
		TargetScore float64
		Deadline    time.Duration
	}

	// MethodRecorded adds a completed method to the score.
	MethodRecorded struct {
		Method Method
	}

	// PathwayFailed records that a child pathway ended without contributing
	// a method. It never fails the verification itself.
	PathwayFailed struct {
		Pathway string
		Cause   string
	}

	// DeadlineReached marks the beginning of the deadline flow. No further
	// completion checks happen until the final trust-network sweep reports.
	DeadlineReached struct{}

	// FinalizationStarted marks the verification's outcome as decided,
	// pending the finalization task.
	FinalizationStarted struct {
		Status string
	}
)

// Terminal statuses decided by the verification before finalization.
const (
	outcomeCompleted = "completed"
	outcomeTimedOut  = "timed_out"
)

const timerDeadline = "deadline"

// Score computes the verification score implied by the given methods.
//
// Community contributions are capped cumulatively at CommunityCap before the
// global MaxScore ceiling is applied. Because raw weights are journaled, the
// same method list always yields the same score.
func Score(methods []Method) float64 {
	var community, total float64

	for _, m := range methods {
		w := m.Weight

		if m.Method == MethodCommunity {
			if community+w > CommunityCap {
				w = CommunityCap - community
			}
			if w < 0 {
				w = 0
			}
			community += w
		}

		total += w
	}

	if total > MaxScore {
		total = MaxScore
	}

	return total
}

// Progress is the root state of a verification instance.
type Progress struct {
	UserID      string
	TargetScore float64
	Deadline    time.Duration

	// Score is the capped score, kept consistent with Methods by ApplyEvent.
	Score   float64
	Methods []Method

	// PathwayFailures maps a failed pathway to the cause of its failure.
	PathwayFailures map[string]string

	// Closing is true once the outcome is decided (or the deadline flow has
	// begun); methods recorded afterwards no longer trigger completion.
	Closing bool

	// Outcome is the decided terminal status, set by FinalizationStarted.
	Outcome string
}

func (p *Progress) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case VerificationStarted:
		p.UserID = ev.UserID
		p.TargetScore = ev.TargetScore
		p.Deadline = ev.Deadline
	case MethodRecorded:
		p.Methods = append(p.Methods, ev.Method)
		p.Score = Score(p.Methods)
	case PathwayFailed:
		if p.PathwayFailures == nil {
			p.PathwayFailures = map[string]string{}
		}
		p.PathwayFailures[ev.Pathway] = ev.Cause
	case DeadlineReached:
		p.Closing = true
	case FinalizationStarted:
		p.Closing = true
		p.Outcome = ev.Status
	}
}

// Process is the parent verification process definition.
type Process struct{}

// Name returns "verification".
func (Process) Name() string {
	return ProcessType
}

// New returns an empty Progress root.
func (Process) New() process.Root {
	return &Progress{}
}

func (Process) HandleStart(
	_ context.Context,
	_ process.Root,
	s process.Scope,
	input interface{},
) error {
	in, ok := input.(Input)
	if !ok {
		return process.Validationf("unexpected input type %T", input)
	}

	if in.UserID == "" {
		return process.Validationf("a user ID is required")
	}

	if in.TargetScore < 0 {
		return process.Validationf("the target score must not be negative")
	}

	if in.TargetScore == 0 {
		in.TargetScore = DefaultTargetScore
	}
	if in.TargetScore > MaxScore {
		in.TargetScore = MaxScore
	}
	if in.Deadline <= 0 {
		in.Deadline = DefaultDeadline
	}

	for _, pathway := range in.InitialMethods {
		if _, ok := pathwayWeights[pathway]; !ok {
			return process.Validationf("unrecognized verification pathway %#v", pathway)
		}
	}

	s.RecordEvent(VerificationStarted{
		UserID:      in.UserID,
		TargetScore: in.TargetScore,
		Deadline:    in.Deadline,
	})

	s.ScheduleTimer(timerDeadline, in.Deadline)

	for _, pathway := range in.InitialMethods {
		startPathway(s, in.UserID, pathway)
	}

	return nil
}

// startPathway spawns the child process implementing the given pathway. The
// child's instance ID is derived from the parent's, so a pathway runs at
// most once per verification.
func startPathway(s process.Scope, userID, pathway string) {
	id := s.InstanceID() + "/" + pathway

	switch pathway {
	case MethodDocument:
		s.StartChild(DocumentProcessType, id, DocumentInput{UserID: userID})
	case MethodCommunity:
		s.StartChild(CommunityProcessType, id, CommunityInput{UserID: userID})
	case MethodInPerson:
		s.StartChild(InPersonProcessType, id, InPersonInput{UserID: userID})
	}
}

func (Process) HandleSignal(
	_ context.Context,
	r process.Root,
	s process.Scope,
	name string,
	payload interface{},
) error {
	p := r.(*Progress)

	switch name {
	case SignalCompleteMethod:
		m, ok := payload.(CompleteMethod)
		if !ok {
			return process.Validationf("unexpected payload type %T for %#v", payload, name)
		}
		if m.Method == "" {
			return process.Validationf("a method name is required")
		}
		if m.Weight < 0 {
			return process.Validationf("the method weight must not be negative")
		}

		recordMethod(s, p, Method{
			Method:      m.Method,
			Weight:      m.Weight,
			Evidence:    m.Evidence,
			CompletedAt: time.Now(),
		})

	case SignalUpdateTrustNetwork:
		s.ExecuteTask(
			TaskCheckTrustNetwork,
			TrustNetworkRequest{UserID: p.UserID},
			trustNetworkPolicy,
		)

	case SignalCancel:
		s.Cancel()

	default:
		return process.Validationf("unrecognized signal %#v", name)
	}

	return nil
}

var (
	trustNetworkPolicy = task.Policy{
		MaxAttempts:  3,
		StartToClose: 30 * time.Second,
		BackoffMin:   1 * time.Second,
		BackoffMax:   30 * time.Second,
	}

	// sideEffectPolicy governs the fire-and-forget collaborator updates. A
	// failure after retries is logged, never escalated.
	sideEffectPolicy = task.Policy{
		MaxAttempts:  5,
		StartToClose: 30 * time.Second,
		BackoffMin:   1 * time.Second,
		BackoffMax:   30 * time.Second,
	}
)

// recordMethod journals the method and advances the verification.
//
// Every method is persisted via the reputation store, including the one that
// settles the outcome; finalization only publishes the result. While the
// verification is closing, the method still counts toward the score but the
// outcome decision is left to the deadline flow.
func recordMethod(s process.Scope, p *Progress, m Method) {
	s.RecordEvent(MethodRecorded{Method: m})

	s.ExecuteTask(
		TaskRecordMethod,
		RecordMethodRequest{UserID: p.UserID, Method: m},
		sideEffectPolicy,
	)

	if p.Closing {
		return
	}

	if p.Score >= p.TargetScore {
		finalize(s, p, outcomeCompleted)
		return
	}

	s.ExecuteTask(
		TaskUpdateScore,
		UpdateScoreRequest{UserID: p.UserID, Score: p.Score},
		sideEffectPolicy,
	)
	s.ExecuteTask(
		TaskNotify,
		NotifyRequest{
			UserID:      p.UserID,
			Kind:        "method_completed",
			Method:      m.Method,
			Score:       p.Score,
			TargetScore: p.TargetScore,
		},
		sideEffectPolicy,
	)
}

// finalize decides the verification's outcome and schedules the task that
// publishes it. The terminal transition itself waits for the task's result,
// as a terminal batch would cancel its own outstanding work.
func finalize(s process.Scope, p *Progress, status string) {
	s.RecordEvent(FinalizationStarted{Status: status})

	s.ExecuteTask(
		TaskFinalize,
		FinalizeRequest{
			UserID:      p.UserID,
			Score:       p.Score,
			Status:      status,
			MethodCount: len(p.Methods),
		},
		sideEffectPolicy,
	)
}

func (Process) HandleTimer(
	_ context.Context,
	r process.Root,
	s process.Scope,
	t process.Timer,
) error {
	p := r.(*Progress)

	if t.Name != timerDeadline || p.Closing {
		return nil
	}

	// One last trust-network sweep before deciding the outcome. The result
	// handler makes the completed-vs-timed-out call.
	s.RecordEvent(DeadlineReached{})

	s.ExecuteTask(
		TaskCheckTrustNetwork,
		TrustNetworkRequest{UserID: p.UserID},
		trustNetworkPolicy,
	)

	return nil
}

func (Process) HandleTaskResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	p := r.(*Progress)

	switch res.Name {
	case TaskCheckTrustNetwork:
		if res.Err != nil {
			s.Log("trust network check failed after %d attempt(s): %s", res.Attempts, res.Err)
		} else if out := res.Output.(TrustNetworkStrength); out.Strength > 0 {
			now := time.Now()

			m := Method{
				Method: MethodTrustNetwork,
				Weight: out.Strength,
				Evidence: Evidence{
					TrustNetwork: &TrustNetworkEvidence{
						Connections:  out.Connections,
						Strength:     out.Strength,
						CalculatedAt: now,
					},
				},
				CompletedAt: now,
			}

			s.RecordEvent(MethodRecorded{Method: m})
			s.ExecuteTask(
				TaskRecordMethod,
				RecordMethodRequest{UserID: p.UserID, Method: m},
				sideEffectPolicy,
			)
		}

		if p.Outcome != "" {
			// A completion decided before the deadline fired wins.
			return nil
		}

		if p.Closing {
			if p.Score >= p.TargetScore {
				finalize(s, p, outcomeCompleted)
			} else {
				finalize(s, p, outcomeTimedOut)
			}
		} else if p.Score >= p.TargetScore {
			finalize(s, p, outcomeCompleted)
		}

	case TaskFinalize:
		if res.Err != nil {
			s.Log("finalization side effects failed: %s", res.Err)
		}

		switch p.Outcome {
		case outcomeCompleted:
			s.Complete(Result{
				UserID:      p.UserID,
				FinalScore:  p.Score,
				Methods:     p.Methods,
				CompletedAt: time.Now(),
			})
		case outcomeTimedOut:
			s.TimeOut()
		}

	case TaskRecordMethod, TaskUpdateScore, TaskNotify:
		if res.Err != nil {
			s.Log("side effect %#v failed after %d attempt(s): %s", res.Name, res.Attempts, res.Err)
		}
	}

	return nil
}

func (Process) HandleChildResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.ChildResult,
) error {
	p := r.(*Progress)
	pathway := pathwayName(res.ProcessType)

	if res.Err != nil {
		s.RecordEvent(PathwayFailed{
			Pathway: pathway,
			Cause:   res.Err.Error(),
		})
		return nil
	}

	now := time.Now()

	switch out := res.Output.(type) {
	case DocumentResult:
		if !out.Valid {
			s.RecordEvent(PathwayFailed{
				Pathway: pathway,
				Cause:   "the document failed its validity checks",
			})
			return nil
		}

		ev := out.Evidence
		recordMethod(s, p, Method{
			Method:      MethodDocument,
			Weight:      pathwayWeights[MethodDocument] * out.ValidityScore / 100,
			Evidence:    Evidence{Document: &ev},
			CompletedAt: now,
		})

	case CommunityResult:
		if !out.Approved {
			s.RecordEvent(PathwayFailed{
				Pathway: pathway,
				Cause:   "the community did not approve the verification",
			})
			return nil
		}

		ev := out.Evidence
		recordMethod(s, p, Method{
			Method:      MethodCommunity,
			Weight:      pathwayWeights[MethodCommunity] * out.Confidence / 100,
			Evidence:    Evidence{Community: &ev},
			CompletedAt: now,
		})

	case InPersonResult:
		ev := out.Evidence
		recordMethod(s, p, Method{
			Method:      MethodInPerson,
			Weight:      pathwayWeights[MethodInPerson],
			Evidence:    Evidence{InPerson: &ev},
			CompletedAt: now,
		})

	default:
		s.RecordEvent(PathwayFailed{
			Pathway: pathway,
			Cause:   "the pathway produced an unrecognized result",
		})
	}

	return nil
}

func (Process) HandleQuery(r process.Root, name string) (interface{}, error) {
	p := r.(*Progress)

	switch name {
	case QueryCurrentScore:
		return p.Score, nil

	case QueryMethodsCompleted:
		return p.Methods, nil

	case QueryProgress:
		// Raw ratio against the target; it exceeds 100 once the score passes
		// the target.
		if p.TargetScore == 0 {
			return 0.0, nil
		}
		return p.Score / p.TargetScore * 100, nil

	case QueryPathwayFailures:
		return p.PathwayFailures, nil
	}

	return nil, UnknownQueryError{Query: name}
}
