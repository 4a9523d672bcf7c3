package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// Task names used by the verification processes.
const (
	TaskRecordMethod        = "record_method"
	TaskUpdateScore         = "update_score"
	TaskNotify              = "notify"
	TaskFinalize            = "finalize_verification"
	TaskCheckTrustNetwork   = "check_trust_network"
	TaskExtractDocument     = "extract_document"
	TaskCheckValidity       = "check_document_validity"
	TaskStoreEvidence       = "store_evidence"
	TaskRequestValidators   = "request_validators"
	TaskAggregateScores     = "aggregate_scores"
	TaskFindVerifiers       = "find_verifiers"
	TaskScheduleAppointment = "schedule_appointment"
	TaskDecayReputation     = "decay_reputation"
)

// Task inputs and outputs. They are journaled, so they must round-trip
// through the engine's marshaler.
type (
	RecordMethodRequest struct {
		UserID string
		Method Method
	}

	UpdateScoreRequest struct {
		UserID string
		Score  float64
	}

	NotifyRequest struct {
		UserID      string
		Kind        string
		Method      string
		Score       float64
		TargetScore float64
	}

	FinalizeRequest struct {
		UserID      string
		Score       float64
		Status      string
		MethodCount int
	}

	TrustNetworkRequest struct {
		UserID string
	}

	TrustNetworkStrength struct {
		Strength    float64
		Connections int
	}

	ExtractDocumentRequest struct {
		UserID       string
		DocumentType string
		DocumentURL  string
	}

	DocumentData struct {
		Fields []string
		Pages  int
	}

	CheckValidityRequest struct {
		DocumentType string
		Fields       []string
	}

	ValidityReport struct {
		Valid  bool
		Score  float64
		Checks []string
	}

	StoreEvidenceRequest struct {
		UserID   string
		Pathway  string
		Evidence Evidence
	}

	RequestValidatorsRequest struct {
		UserID   string
		PoolSize int
	}

	ValidatorCandidates struct {
		ValidatorIDs []string
	}

	AggregateScoresRequest struct {
		Approvals  []ValidatorResponse
		Rejections []ValidatorResponse
	}

	ValidationConfidence struct {
		Score float64
	}

	FindVerifiersRequest struct {
		Location         string
		TimeSlots        []time.Time
		RequireCertified bool
	}

	VerifierCandidates struct {
		VerifierIDs []string
	}

	ScheduleAppointmentRequest struct {
		UserID     string
		VerifierID string
		At         time.Time
	}

	Appointment struct {
		VerifierID  string
		ScheduledAt time.Time
	}

	DecayReputationRequest struct {
		UserID  string
		Percent float64
	}

	ReputationScore struct {
		Value float64
	}
)

// extractionProgress is the heartbeat progress token for document
// extraction. It lives only in memory, never in the journal.
type extractionProgress struct {
	NextPage int
	Fields   []string
}

// TrustDirectory exposes the trust network.
type TrustDirectory interface {
	// NetworkStrength calculates the strength of the user's connections to
	// already-verified users.
	NetworkStrength(ctx context.Context, userID string) (TrustNetworkStrength, error)

	// RequestValidators invites up to poolSize validators to vouch for the
	// user, returning the IDs of those invited.
	RequestValidators(ctx context.Context, userID string, poolSize int) ([]string, error)

	// ValidatorReputation returns a validator's reputation, 0..100.
	ValidatorReputation(ctx context.Context, validatorID string) (float64, error)
}

// DocumentAnalyzer performs OCR and validity checks on identity documents.
type DocumentAnalyzer interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, req ExtractDocumentRequest) (int, error)

	// ExtractPage extracts the fields found on one page.
	ExtractPage(ctx context.Context, req ExtractDocumentRequest, page int) ([]string, error)

	// CheckValidity checks the extracted fields for consistency and forgery
	// indicators.
	CheckValidity(ctx context.Context, documentType string, fields []string) (ValidityReport, error)
}

// EvidenceStore persists the audit trail of completed verification methods.
type EvidenceStore interface {
	Store(ctx context.Context, userID, pathway string, ev Evidence) error
}

// VerifierDirectory locates and books in-person verifiers.
type VerifierDirectory interface {
	FindVerifiers(ctx context.Context, req FindVerifiersRequest) ([]string, error)
	ScheduleAppointment(ctx context.Context, req ScheduleAppointmentRequest) (Appointment, error)
}

// Notifier delivers progress notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n NotifyRequest) error
}

// ReputationStore persists verification scores and reputation.
type ReputationStore interface {
	RecordMethod(ctx context.Context, userID string, m Method) error
	SetScore(ctx context.Context, userID string, score float64) error

	// ApplyDecay reduces the user's reputation by the given percentage and
	// returns the new value.
	ApplyDecay(ctx context.Context, userID string, percent float64) (float64, error)
}

// Collaborators bundles the external services the verification tasks call.
type Collaborators struct {
	Trust       TrustDirectory
	Documents   DocumentAnalyzer
	Evidence    EvidenceStore
	Verifiers   VerifierDirectory
	Notifier    Notifier
	Reputations ReputationStore
}

// Tasks returns a registry binding every verification task to the given
// collaborators.
func Tasks(c Collaborators) *task.Registry {
	r := &task.Registry{}

	r.Register(TaskRecordMethod, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(RecordMethodRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return nil, c.Reputations.RecordMethod(ctx, req.UserID, req.Method)
	})

	r.Register(TaskUpdateScore, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(UpdateScoreRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return nil, c.Reputations.SetScore(ctx, req.UserID, req.Score)
	})

	r.Register(TaskNotify, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(NotifyRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return nil, c.Notifier.Notify(ctx, req)
	})

	r.Register(TaskFinalize, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(FinalizeRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		if err := c.Reputations.SetScore(ctx, req.UserID, req.Score); err != nil {
			return nil, err
		}

		return nil, c.Notifier.Notify(ctx, NotifyRequest{
			UserID: req.UserID,
			Kind:   "verification_" + req.Status,
			Score:  req.Score,
		})
	})

	r.Register(TaskCheckTrustNetwork, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(TrustNetworkRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return c.Trust.NetworkStrength(ctx, req.UserID)
	})

	r.Register(TaskExtractDocument, func(ctx context.Context, hb *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(ExtractDocumentRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		pages, err := c.Documents.PageCount(ctx, req)
		if err != nil {
			return nil, err
		}

		// Resume from the page the previous attempt stalled on.
		var fields []string
		page := 0
		if p, ok := hb.Progress().(extractionProgress); ok {
			page = p.NextPage
			fields = p.Fields
		}

		for ; page < pages; page++ {
			f, err := c.Documents.ExtractPage(ctx, req, page)
			if err != nil {
				return nil, err
			}

			fields = append(fields, f...)
			hb.Beat(extractionProgress{
				NextPage: page + 1,
				Fields:   fields,
			})
		}

		return DocumentData{
			Fields: fields,
			Pages:  pages,
		}, nil
	})

	r.Register(TaskCheckValidity, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(CheckValidityRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return c.Documents.CheckValidity(ctx, req.DocumentType, req.Fields)
	})

	r.Register(TaskStoreEvidence, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(StoreEvidenceRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return nil, c.Evidence.Store(ctx, req.UserID, req.Pathway, req.Evidence)
	})

	r.Register(TaskRequestValidators, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(RequestValidatorsRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		ids, err := c.Trust.RequestValidators(ctx, req.UserID, req.PoolSize)
		if err != nil {
			return nil, err
		}

		return ValidatorCandidates{ValidatorIDs: ids}, nil
	})

	r.Register(TaskAggregateScores, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(AggregateScoresRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		var approved, total float64

		weigh := func(responses []ValidatorResponse, count bool) error {
			for _, resp := range responses {
				rep, err := c.Trust.ValidatorReputation(ctx, resp.ValidatorID)
				if err != nil {
					return err
				}

				if count {
					approved += rep
				}
				total += rep
			}

			return nil
		}

		if err := weigh(req.Approvals, true); err != nil {
			return nil, err
		}
		if err := weigh(req.Rejections, false); err != nil {
			return nil, err
		}

		if total == 0 {
			return ValidationConfidence{}, nil
		}

		return ValidationConfidence{
			Score: approved / total * 100,
		}, nil
	})

	r.Register(TaskFindVerifiers, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(FindVerifiersRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		ids, err := c.Verifiers.FindVerifiers(ctx, req)
		if err != nil {
			return nil, err
		}

		return VerifierCandidates{VerifierIDs: ids}, nil
	})

	r.Register(TaskScheduleAppointment, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(ScheduleAppointmentRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		return c.Verifiers.ScheduleAppointment(ctx, req)
	})

	r.Register(TaskDecayReputation, func(ctx context.Context, _ *task.Heartbeat, input interface{}) (interface{}, error) {
		req, ok := input.(DecayReputationRequest)
		if !ok {
			return nil, task.Abort(fmt.Errorf("unexpected input type %T", input))
		}

		v, err := c.Reputations.ApplyDecay(ctx, req.UserID, req.Percent)
		if err != nil {
			return nil, err
		}

		return ReputationScore{Value: v}, nil
	})

	return r
}

// Definitions returns the process definitions that make up the verification
// domain.
func Definitions() []process.Definition {
	return []process.Definition{
		Process{},
		DocumentProcess{},
		CommunityProcess{},
		InPersonProcess{},
		DecayProcess{},
	}
}
