// Package verify implements the identity-verification domain on top of the
// vouchsafe process engine.
//
// A verification accumulates a 0..100 trust score for a user through
// independent, asynchronously-completing pathways (document analysis,
// community validation, in-person verification), each running as a child
// process with its own retry policy and lifecycle. A separate long-horizon
// decay process periodically reduces a user's reputation, using
// continue-as-new to keep its history bounded over years of operation.
package verify

import (
	"fmt"
	"reflect"
	"time"
)

// Process type names, as registered with the engine.
const (
	ProcessType          = "verification"
	DocumentProcessType  = "verification.document"
	CommunityProcessType = "verification.community"
	InPersonProcessType  = "verification.in-person"
	DecayProcessType     = "reputation-decay"
)

// Verification method names.
const (
	MethodDocument     = "document"
	MethodCommunity    = "community"
	MethodInPerson     = "in_person"
	MethodTrustNetwork = "trust_network"
	MethodManual       = "manual"
)

// Signal names accepted by the verification processes.
const (
	SignalCompleteMethod        = "complete_method"
	SignalUpdateTrustNetwork    = "update_trust_network"
	SignalCancel                = "cancel"
	SignalValidatorResponse     = "validator_response"
	SignalVerificationCompleted = "verification_completed"
	SignalCancelDecay           = "cancel_decay"
)

// Query names answered by the verification processes.
const (
	QueryCurrentScore       = "current_score"
	QueryMethodsCompleted   = "methods_completed"
	QueryProgress           = "progress_percentage"
	QueryPathwayFailures    = "pathway_failures"
	QueryDocumentStatus     = "document_status"
	QueryValidationProgress = "validation_progress"
	QueryAppointmentStatus  = "appointment_status"
	QueryCurrentReputation  = "current_reputation"
	QueryIsCancelled        = "is_cancelled"
	QueryIteration          = "iteration"
)

var (
	// MaxScore is the global ceiling on a verification score.
	MaxScore = 100.0

	// CommunityCap is the cumulative ceiling on points earned through
	// community validation.
	CommunityCap = 50.0

	// DefaultTargetScore is the target used when a verification is started
	// without one.
	DefaultTargetScore = 50.0

	// DefaultDeadline is the deadline used when a verification is started
	// without one.
	DefaultDeadline = 30 * 24 * time.Hour

	// DecayPercent is the percentage by which a user's reputation is reduced
	// each decay interval.
	DecayPercent = 5.0

	// DefaultDecayInterval is the sleep between decay cycles.
	DefaultDecayInterval = 30 * 24 * time.Hour

	// DefaultDecayIterations is the total number of decay cycles before the
	// decay process stops of its own accord.
	DefaultDecayIterations = 1000
)

// pathwayWeights are the base scores awarded for a successful pathway,
// scaled by the pathway's own confidence in its result.
var pathwayWeights = map[string]float64{
	MethodDocument:  30,
	MethodCommunity: 50,
	MethodInPerson:  40,
}

// VerificationID returns the process instance ID used for the given user's
// verification.
func VerificationID(userID string) string {
	return "verification-" + userID
}

// DecayID returns the process instance ID used for the given user's
// reputation decay loop.
func DecayID(userID string) string {
	return "reputation-decay-" + userID
}

// UnknownQueryError is the error returned when a process is queried by a
// name it does not recognize.
type UnknownQueryError struct {
	Query string
}

func (e UnknownQueryError) Error() string {
	return fmt.Sprintf("unrecognized query %#v", e.Query)
}

// pathwayName maps a child process type to the verification method it
// contributes.
func pathwayName(processType string) string {
	switch processType {
	case DocumentProcessType:
		return MethodDocument
	case CommunityProcessType:
		return MethodCommunity
	case InPersonProcessType:
		return MethodInPerson
	}

	return processType
}

// Types returns the application-defined types that must be registered with
// the engine's marshaler in order to host the verification processes.
func Types() []reflect.Type {
	return []reflect.Type{
		// verification process
		reflect.TypeOf(Input{}),
		reflect.TypeOf(Result{}),
		reflect.TypeOf(CompleteMethod{}),
		reflect.TypeOf(VerificationStarted{}),
		reflect.TypeOf(MethodRecorded{}),
		reflect.TypeOf(PathwayFailed{}),
		reflect.TypeOf(DeadlineReached{}),
		reflect.TypeOf(FinalizationStarted{}),

		// document pathway
		reflect.TypeOf(DocumentInput{}),
		reflect.TypeOf(DocumentResult{}),
		reflect.TypeOf(DocumentSubmitted{}),
		reflect.TypeOf(DocumentExtracted{}),
		reflect.TypeOf(DocumentChecked{}),

		// community pathway
		reflect.TypeOf(CommunityInput{}),
		reflect.TypeOf(CommunityResult{}),
		reflect.TypeOf(ValidatorResponse{}),
		reflect.TypeOf(ValidationRequested{}),
		reflect.TypeOf(ValidatorsInvited{}),
		reflect.TypeOf(ValidatorResponded{}),
		reflect.TypeOf(VotingClosed{}),
		reflect.TypeOf(ConfidenceScored{}),

		// in-person pathway
		reflect.TypeOf(InPersonInput{}),
		reflect.TypeOf(InPersonResult{}),
		reflect.TypeOf(VerificationCompleted{}),
		reflect.TypeOf(AppointmentRequested{}),
		reflect.TypeOf(VerifiersFound{}),
		reflect.TypeOf(AppointmentScheduled{}),
		reflect.TypeOf(VerifierConfirmed{}),

		// decay process
		reflect.TypeOf(DecayInput{}),
		reflect.TypeOf(DecayResult{}),
		reflect.TypeOf(CancelDecay{}),
		reflect.TypeOf(DecayCycleStarted{}),
		reflect.TypeOf(ReputationDecayed{}),
		reflect.TypeOf(DecayCancelled{}),

		// collaborator tasks
		reflect.TypeOf(RecordMethodRequest{}),
		reflect.TypeOf(UpdateScoreRequest{}),
		reflect.TypeOf(NotifyRequest{}),
		reflect.TypeOf(FinalizeRequest{}),
		reflect.TypeOf(TrustNetworkRequest{}),
		reflect.TypeOf(TrustNetworkStrength{}),
		reflect.TypeOf(ExtractDocumentRequest{}),
		reflect.TypeOf(DocumentData{}),
		reflect.TypeOf(CheckValidityRequest{}),
		reflect.TypeOf(ValidityReport{}),
		reflect.TypeOf(StoreEvidenceRequest{}),
		reflect.TypeOf(RequestValidatorsRequest{}),
		reflect.TypeOf(ValidatorCandidates{}),
		reflect.TypeOf(AggregateScoresRequest{}),
		reflect.TypeOf(ValidationConfidence{}),
		reflect.TypeOf(FindVerifiersRequest{}),
		reflect.TypeOf(VerifierCandidates{}),
		reflect.TypeOf(ScheduleAppointmentRequest{}),
		reflect.TypeOf(Appointment{}),
		reflect.TypeOf(DecayReputationRequest{}),
		reflect.TypeOf(ReputationScore{}),
	}
}
