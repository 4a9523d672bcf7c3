package fixtures

import (
	"context"

	"github.com/vouchsafe/vouchsafe/verify"
)

// Collaborators returns a verify.Collaborators populated with stub
// implementations of every collaborator interface.
func Collaborators() verify.Collaborators {
	return verify.Collaborators{
		Trust:       &TrustDirectoryStub{},
		Documents:   &DocumentAnalyzerStub{},
		Evidence:    &EvidenceStoreStub{},
		Verifiers:   &VerifierDirectoryStub{},
		Notifier:    &NotifierStub{},
		Reputations: &ReputationStoreStub{},
	}
}

// TrustDirectoryStub is a test implementation of the verify.TrustDirectory
// interface.
type TrustDirectoryStub struct {
	NetworkStrengthFunc     func(ctx context.Context, userID string) (verify.TrustNetworkStrength, error)
	RequestValidatorsFunc   func(ctx context.Context, userID string, poolSize int) ([]string, error)
	ValidatorReputationFunc func(ctx context.Context, validatorID string) (float64, error)
}

// NetworkStrength calls s.NetworkStrengthFunc(ctx, userID) if it is non-nil,
// otherwise it returns zero strength.
func (s *TrustDirectoryStub) NetworkStrength(ctx context.Context, userID string) (verify.TrustNetworkStrength, error) {
	if s.NetworkStrengthFunc != nil {
		return s.NetworkStrengthFunc(ctx, userID)
	}

	return verify.TrustNetworkStrength{}, nil
}

// RequestValidators calls s.RequestValidatorsFunc(ctx, userID, poolSize) if
// it is non-nil, otherwise it returns no validators.
func (s *TrustDirectoryStub) RequestValidators(ctx context.Context, userID string, poolSize int) ([]string, error) {
	if s.RequestValidatorsFunc != nil {
		return s.RequestValidatorsFunc(ctx, userID, poolSize)
	}

	return nil, nil
}

// ValidatorReputation calls s.ValidatorReputationFunc(ctx, validatorID) if it
// is non-nil, otherwise it returns a neutral reputation of 50.
func (s *TrustDirectoryStub) ValidatorReputation(ctx context.Context, validatorID string) (float64, error) {
	if s.ValidatorReputationFunc != nil {
		return s.ValidatorReputationFunc(ctx, validatorID)
	}

	return 50, nil
}

// DocumentAnalyzerStub is a test implementation of the
// verify.DocumentAnalyzer interface.
type DocumentAnalyzerStub struct {
	PageCountFunc     func(ctx context.Context, req verify.ExtractDocumentRequest) (int, error)
	ExtractPageFunc   func(ctx context.Context, req verify.ExtractDocumentRequest, page int) ([]string, error)
	CheckValidityFunc func(ctx context.Context, documentType string, fields []string) (verify.ValidityReport, error)
}

// PageCount calls s.PageCountFunc(ctx, req) if it is non-nil, otherwise it
// reports a single page.
func (s *DocumentAnalyzerStub) PageCount(ctx context.Context, req verify.ExtractDocumentRequest) (int, error) {
	if s.PageCountFunc != nil {
		return s.PageCountFunc(ctx, req)
	}

	return 1, nil
}

// ExtractPage calls s.ExtractPageFunc(ctx, req, page) if it is non-nil,
// otherwise it extracts no fields.
func (s *DocumentAnalyzerStub) ExtractPage(ctx context.Context, req verify.ExtractDocumentRequest, page int) ([]string, error) {
	if s.ExtractPageFunc != nil {
		return s.ExtractPageFunc(ctx, req, page)
	}

	return nil, nil
}

// CheckValidity calls s.CheckValidityFunc(ctx, documentType, fields) if it is
// non-nil, otherwise it reports a fully valid document.
func (s *DocumentAnalyzerStub) CheckValidity(ctx context.Context, documentType string, fields []string) (verify.ValidityReport, error) {
	if s.CheckValidityFunc != nil {
		return s.CheckValidityFunc(ctx, documentType, fields)
	}

	return verify.ValidityReport{
		Valid: true,
		Score: 100,
	}, nil
}

// EvidenceStoreStub is a test implementation of the verify.EvidenceStore
// interface.
type EvidenceStoreStub struct {
	StoreFunc func(ctx context.Context, userID, pathway string, ev verify.Evidence) error
}

// Store calls s.StoreFunc(ctx, userID, pathway, ev) if it is non-nil,
// otherwise it discards the evidence.
func (s *EvidenceStoreStub) Store(ctx context.Context, userID, pathway string, ev verify.Evidence) error {
	if s.StoreFunc != nil {
		return s.StoreFunc(ctx, userID, pathway, ev)
	}

	return nil
}

// VerifierDirectoryStub is a test implementation of the
// verify.VerifierDirectory interface.
type VerifierDirectoryStub struct {
	FindVerifiersFunc       func(ctx context.Context, req verify.FindVerifiersRequest) ([]string, error)
	ScheduleAppointmentFunc func(ctx context.Context, req verify.ScheduleAppointmentRequest) (verify.Appointment, error)
}

// FindVerifiers calls s.FindVerifiersFunc(ctx, req) if it is non-nil,
// otherwise it finds no verifiers.
func (s *VerifierDirectoryStub) FindVerifiers(ctx context.Context, req verify.FindVerifiersRequest) ([]string, error) {
	if s.FindVerifiersFunc != nil {
		return s.FindVerifiersFunc(ctx, req)
	}

	return nil, nil
}

// ScheduleAppointment calls s.ScheduleAppointmentFunc(ctx, req) if it is
// non-nil, otherwise it books the requested verifier at the requested time.
func (s *VerifierDirectoryStub) ScheduleAppointment(ctx context.Context, req verify.ScheduleAppointmentRequest) (verify.Appointment, error) {
	if s.ScheduleAppointmentFunc != nil {
		return s.ScheduleAppointmentFunc(ctx, req)
	}

	return verify.Appointment{
		VerifierID:  req.VerifierID,
		ScheduledAt: req.At,
	}, nil
}

// NotifierStub is a test implementation of the verify.Notifier interface.
type NotifierStub struct {
	NotifyFunc func(ctx context.Context, n verify.NotifyRequest) error
}

// Notify calls s.NotifyFunc(ctx, n) if it is non-nil, otherwise it discards
// the notification.
func (s *NotifierStub) Notify(ctx context.Context, n verify.NotifyRequest) error {
	if s.NotifyFunc != nil {
		return s.NotifyFunc(ctx, n)
	}

	return nil
}

// ReputationStoreStub is a test implementation of the verify.ReputationStore
// interface.
type ReputationStoreStub struct {
	RecordMethodFunc func(ctx context.Context, userID string, m verify.Method) error
	SetScoreFunc     func(ctx context.Context, userID string, score float64) error
	ApplyDecayFunc   func(ctx context.Context, userID string, percent float64) (float64, error)
}

// RecordMethod calls s.RecordMethodFunc(ctx, userID, m) if it is non-nil,
// otherwise it discards the method.
func (s *ReputationStoreStub) RecordMethod(ctx context.Context, userID string, m verify.Method) error {
	if s.RecordMethodFunc != nil {
		return s.RecordMethodFunc(ctx, userID, m)
	}

	return nil
}

// SetScore calls s.SetScoreFunc(ctx, userID, score) if it is non-nil,
// otherwise it discards the score.
func (s *ReputationStoreStub) SetScore(ctx context.Context, userID string, score float64) error {
	if s.SetScoreFunc != nil {
		return s.SetScoreFunc(ctx, userID, score)
	}

	return nil
}

// ApplyDecay calls s.ApplyDecayFunc(ctx, userID, percent) if it is non-nil,
// otherwise it returns zero.
func (s *ReputationStoreStub) ApplyDecay(ctx context.Context, userID string, percent float64) (float64, error) {
	if s.ApplyDecayFunc != nil {
		return s.ApplyDecayFunc(ctx, userID, percent)
	}

	return 0, nil
}
