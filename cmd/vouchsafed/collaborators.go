package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vouchsafe/vouchsafe/verify"
	"go.uber.org/zap"
)

// localCollaborators returns development stand-ins for the external services
// the verification tasks call.
//
// Evidence is written to JSON files under dir; reputation lives in memory;
// notifications are logged. The trust and verifier directories are empty, so
// community and in-person pathways fail cleanly until real integrations are
// configured.
func localCollaborators(zl *zap.Logger, dir string) verify.Collaborators {
	return verify.Collaborators{
		Trust:       emptyTrustDirectory{},
		Documents:   permissiveAnalyzer{},
		Evidence:    &fileEvidenceStore{dir: dir},
		Verifiers:   emptyVerifierDirectory{},
		Notifier:    &logNotifier{logger: zl},
		Reputations: &memoryReputationStore{},
	}
}

type emptyTrustDirectory struct{}

func (emptyTrustDirectory) NetworkStrength(context.Context, string) (verify.TrustNetworkStrength, error) {
	return verify.TrustNetworkStrength{}, nil
}

func (emptyTrustDirectory) RequestValidators(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (emptyTrustDirectory) ValidatorReputation(context.Context, string) (float64, error) {
	return 50, nil
}

// permissiveAnalyzer accepts every document at half confidence.
type permissiveAnalyzer struct{}

func (permissiveAnalyzer) PageCount(context.Context, verify.ExtractDocumentRequest) (int, error) {
	return 1, nil
}

func (permissiveAnalyzer) ExtractPage(_ context.Context, req verify.ExtractDocumentRequest, _ int) ([]string, error) {
	return []string{
		"document_type: " + req.DocumentType,
	}, nil
}

func (permissiveAnalyzer) CheckValidity(context.Context, string, []string) (verify.ValidityReport, error) {
	return verify.ValidityReport{
		Valid:  true,
		Score:  50,
		Checks: []string{"development-stand-in"},
	}, nil
}

// fileEvidenceStore writes each piece of evidence to its own JSON file.
type fileEvidenceStore struct {
	dir string
}

func (s *fileEvidenceStore) Store(_ context.Context, userID, pathway string, ev verify.Evidence) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf(
		"%s-%s-%d.json",
		userID,
		pathway,
		time.Now().UnixNano(),
	)

	return os.WriteFile(filepath.Join(s.dir, name), data, 0600)
}

type emptyVerifierDirectory struct{}

func (emptyVerifierDirectory) FindVerifiers(context.Context, verify.FindVerifiersRequest) ([]string, error) {
	return nil, nil
}

func (emptyVerifierDirectory) ScheduleAppointment(_ context.Context, req verify.ScheduleAppointmentRequest) (verify.Appointment, error) {
	return verify.Appointment{
		VerifierID:  req.VerifierID,
		ScheduledAt: req.At,
	}, nil
}

type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) Notify(_ context.Context, msg verify.NotifyRequest) error {
	n.logger.Info(
		"notification",
		zap.String("user", msg.UserID),
		zap.String("kind", msg.Kind),
		zap.Float64("score", msg.Score),
	)

	return nil
}

type memoryReputationStore struct {
	m      sync.Mutex
	scores map[string]float64
}

func (s *memoryReputationStore) RecordMethod(context.Context, string, verify.Method) error {
	return nil
}

func (s *memoryReputationStore) SetScore(_ context.Context, userID string, score float64) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.scores == nil {
		s.scores = map[string]float64{}
	}
	s.scores[userID] = score

	return nil
}

func (s *memoryReputationStore) ApplyDecay(_ context.Context, userID string, percent float64) (float64, error) {
	s.m.Lock()
	defer s.m.Unlock()

	v := s.scores[userID]
	v -= v * percent / 100
	if s.scores == nil {
		s.scores = map[string]float64{}
	}
	s.scores[userID] = v

	return v, nil
}
