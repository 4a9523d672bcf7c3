package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// InPersonInput starts an in-person verification pathway.
type InPersonInput struct {
	UserID string

	// Location constrains the verifier search. Empty means anywhere.
	Location string

	// TimeSlots are the user's preferred appointment times, in order of
	// preference. Empty lets the verifier propose a time.
	TimeSlots []time.Time

	// RequireCertified restricts the search to certified verifiers.
	RequireCertified bool
}

// InPersonResult is the outcome the pathway completes with.
type InPersonResult struct {
	VerifierID string
	Location   string
	VerifiedAt time.Time
	Evidence   InPersonEvidence
}

// VerificationCompleted is the signal payload sent by the verifier after
// meeting the user.
type VerificationCompleted struct {
	VerifierID string
	VerifiedAt time.Time
}

// AppointmentStatus answers the appointment_status query.
type AppointmentStatus struct {
	Scheduled   bool
	Completed   bool
	VerifierID  string
	ScheduledAt time.Time
}

// Events journaled by the in-person pathway.
type (
	AppointmentRequested struct {
		Input InPersonInput
	}

	VerifiersFound struct {
		VerifierIDs []string
	}

	AppointmentScheduled struct {
		VerifierID  string
		ScheduledAt time.Time
	}

	VerifierConfirmed struct {
		VerifierID string
		VerifiedAt time.Time
	}
)

const timerAppointment = "appointment-window"

// appointmentWindow is how long the user has to attend a scheduled
// appointment before the pathway times out.
const appointmentWindow = 7 * 24 * time.Hour

// inPersonState is the root state of an in-person pathway instance.
type inPersonState struct {
	Input       InPersonInput
	Candidates  []string
	Scheduled   bool
	VerifierID  string
	ScheduledAt time.Time
	Completed   bool
	VerifiedAt  time.Time
}

func (a *inPersonState) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case AppointmentRequested:
		a.Input = ev.Input
	case VerifiersFound:
		a.Candidates = ev.VerifierIDs
	case AppointmentScheduled:
		a.Scheduled = true
		a.VerifierID = ev.VerifierID
		a.ScheduledAt = ev.ScheduledAt
	case VerifierConfirmed:
		a.Completed = true
		a.VerifierID = ev.VerifierID
		a.VerifiedAt = ev.VerifiedAt
	}
}

// InPersonProcess arranges a face-to-face verification with a trusted
// verifier. It completes only when the verifier confirms the meeting took
// place, and times out if the appointment window elapses first.
type InPersonProcess struct{}

func (InPersonProcess) Name() string {
	return InPersonProcessType
}

func (InPersonProcess) New() process.Root {
	return &inPersonState{}
}

func (InPersonProcess) HandleStart(
	_ context.Context,
	_ process.Root,
	s process.Scope,
	input interface{},
) error {
	in, ok := input.(InPersonInput)
	if !ok {
		return process.Validationf("unexpected input type %T", input)
	}

	if in.UserID == "" {
		return process.Validationf("a user ID is required")
	}

	s.RecordEvent(AppointmentRequested{Input: in})

	s.ExecuteTask(
		TaskFindVerifiers,
		FindVerifiersRequest{
			Location:         in.Location,
			TimeSlots:        in.TimeSlots,
			RequireCertified: in.RequireCertified,
		},
		task.Policy{
			MaxAttempts:  2,
			StartToClose: 30 * time.Second,
		},
	)

	return nil
}

func (InPersonProcess) HandleSignal(
	_ context.Context,
	r process.Root,
	s process.Scope,
	name string,
	payload interface{},
) error {
	a := r.(*inPersonState)

	if name != SignalVerificationCompleted {
		return process.Validationf("unrecognized signal %#v", name)
	}

	conf, ok := payload.(VerificationCompleted)
	if !ok {
		return process.Validationf("unexpected payload type %T for %#v", payload, name)
	}

	if !a.Scheduled {
		return process.Validationf("no appointment has been scheduled")
	}
	if conf.VerifierID != a.VerifierID {
		return process.Validationf("verifier %#v is not assigned to this appointment", conf.VerifierID)
	}

	at := conf.VerifiedAt
	if at.IsZero() {
		at = time.Now()
	}

	s.RecordEvent(VerifierConfirmed{
		VerifierID: conf.VerifierID,
		VerifiedAt: at,
	})

	s.ExecuteTask(
		TaskStoreEvidence,
		StoreEvidenceRequest{
			UserID:   a.Input.UserID,
			Pathway:  MethodInPerson,
			Evidence: Evidence{InPerson: a.evidence()},
		},
		task.Policy{
			MaxAttempts:  3,
			StartToClose: 10 * time.Second,
		},
	)

	return nil
}

func (InPersonProcess) HandleTaskResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	a := r.(*inPersonState)

	switch res.Name {
	case TaskFindVerifiers:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("finding verifiers failed: %s", res.Err))
			return nil
		}

		out := res.Output.(VerifierCandidates)
		if len(out.VerifierIDs) == 0 {
			s.Fail("no verifiers are available")
			return nil
		}

		s.RecordEvent(VerifiersFound{VerifierIDs: out.VerifierIDs})

		var at time.Time
		if len(a.Input.TimeSlots) > 0 {
			at = a.Input.TimeSlots[0]
		}

		s.ExecuteTask(
			TaskScheduleAppointment,
			ScheduleAppointmentRequest{
				UserID:     a.Input.UserID,
				VerifierID: out.VerifierIDs[0],
				At:         at,
			},
			task.Policy{
				MaxAttempts:  2,
				StartToClose: 30 * time.Second,
			},
		)

	case TaskScheduleAppointment:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("scheduling the appointment failed: %s", res.Err))
			return nil
		}

		out := res.Output.(Appointment)
		s.RecordEvent(AppointmentScheduled{
			VerifierID:  out.VerifierID,
			ScheduledAt: out.ScheduledAt,
		})

		s.ScheduleTimer(timerAppointment, appointmentWindow)

	case TaskStoreEvidence:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("storing in-person evidence failed: %s", res.Err))
			return nil
		}

		s.Complete(InPersonResult{
			VerifierID: a.VerifierID,
			Location:   a.Input.Location,
			VerifiedAt: a.VerifiedAt,
			Evidence:   *a.evidence(),
		})
	}

	return nil
}

func (a *inPersonState) evidence() *InPersonEvidence {
	return &InPersonEvidence{
		VerifierID:  a.VerifierID,
		Location:    a.Input.Location,
		ScheduledAt: a.ScheduledAt,
		VerifiedAt:  a.VerifiedAt,
	}
}

func (InPersonProcess) HandleTimer(
	_ context.Context,
	r process.Root,
	s process.Scope,
	t process.Timer,
) error {
	a := r.(*inPersonState)

	if t.Name == timerAppointment && !a.Completed {
		s.TimeOut()
	}

	return nil
}

func (InPersonProcess) HandleChildResult(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	_ process.ChildResult,
) error {
	return nil
}

func (InPersonProcess) HandleQuery(r process.Root, name string) (interface{}, error) {
	a := r.(*inPersonState)

	if name == QueryAppointmentStatus {
		return AppointmentStatus{
			Scheduled:   a.Scheduled,
			Completed:   a.Completed,
			VerifierID:  a.VerifierID,
			ScheduledAt: a.ScheduledAt,
		}, nil
	}

	return nil, UnknownQueryError{Query: name}
}
