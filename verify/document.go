package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

// DocumentInput starts a document verification pathway.
type DocumentInput struct {
	UserID string

	// DocumentType describes the kind of document, e.g. "passport". It
	// defaults to "unspecified"; the analyzer then detects the type itself.
	DocumentType string

	// DocumentURL locates the uploaded document. If empty, the analyzer
	// resolves the user's most recent upload.
	DocumentURL string
}

// DocumentResult is the outcome the pathway completes with.
type DocumentResult struct {
	Valid         bool
	ValidityScore float64
	Fields        []string
	Evidence      DocumentEvidence
}

// Events journaled by the document pathway.
type (
	DocumentSubmitted struct {
		Input DocumentInput
	}

	DocumentExtracted struct {
		Fields []string
		Pages  int
	}

	DocumentChecked struct {
		Valid  bool
		Score  float64
		Checks []string
		At     time.Time
	}
)

// DocumentStatus answers the document_status query.
type DocumentStatus struct {
	Extracted     bool
	Checked       bool
	Valid         bool
	ValidityScore float64
}

// documentState is the root state of a document pathway instance.
type documentState struct {
	Input     DocumentInput
	Fields    []string
	Extracted bool
	Checked   bool
	Valid     bool
	Score     float64
	Checks    []string
	CheckedAt time.Time
}

func (d *documentState) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case DocumentSubmitted:
		d.Input = ev.Input
	case DocumentExtracted:
		d.Fields = ev.Fields
		d.Extracted = true
	case DocumentChecked:
		d.Checked = true
		d.Valid = ev.Valid
		d.Score = ev.Score
		d.Checks = ev.Checks
		d.CheckedAt = ev.At
	}
}

// DocumentProcess verifies a user's identity document.
//
// Extraction is the long pole: OCR of a multi-page document can take
// minutes, so the task heartbeats per page and resumes from the last
// completed page when an attempt stalls.
type DocumentProcess struct{}

func (DocumentProcess) Name() string {
	return DocumentProcessType
}

func (DocumentProcess) New() process.Root {
	return &documentState{}
}

func (DocumentProcess) HandleStart(
	_ context.Context,
	_ process.Root,
	s process.Scope,
	input interface{},
) error {
	in, ok := input.(DocumentInput)
	if !ok {
		return process.Validationf("unexpected input type %T", input)
	}

	if in.UserID == "" {
		return process.Validationf("a user ID is required")
	}

	if in.DocumentType == "" {
		in.DocumentType = "unspecified"
	}

	s.RecordEvent(DocumentSubmitted{Input: in})

	s.ExecuteTask(
		TaskExtractDocument,
		ExtractDocumentRequest{
			UserID:       in.UserID,
			DocumentType: in.DocumentType,
			DocumentURL:  in.DocumentURL,
		},
		task.Policy{
			MaxAttempts:       3,
			StartToClose:      5 * time.Minute,
			HeartbeatInterval: 30 * time.Second,
			BackoffMin:        5 * time.Second,
			BackoffMax:        1 * time.Minute,
		},
	)

	return nil
}

func (DocumentProcess) HandleSignal(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	name string,
	_ interface{},
) error {
	return process.Validationf("unrecognized signal %#v", name)
}

func (DocumentProcess) HandleTaskResult(
	_ context.Context,
	r process.Root,
	s process.Scope,
	res process.TaskResult,
) error {
	d := r.(*documentState)

	switch res.Name {
	case TaskExtractDocument:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("document extraction failed: %s", res.Err))
			return nil
		}

		out := res.Output.(DocumentData)
		s.RecordEvent(DocumentExtracted{
			Fields: out.Fields,
			Pages:  out.Pages,
		})

		s.ExecuteTask(
			TaskCheckValidity,
			CheckValidityRequest{
				DocumentType: d.Input.DocumentType,
				Fields:       out.Fields,
			},
			task.Policy{
				MaxAttempts:  2,
				StartToClose: 30 * time.Second,
			},
		)

	case TaskCheckValidity:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("document validity check failed: %s", res.Err))
			return nil
		}

		out := res.Output.(ValidityReport)
		s.RecordEvent(DocumentChecked{
			Valid:  out.Valid,
			Score:  out.Score,
			Checks: out.Checks,
			At:     time.Now(),
		})

		if !out.Valid {
			// An invalid document is a successful analysis; the parent treats
			// the result as a pathway failure.
			s.Complete(DocumentResult{
				Valid:  false,
				Fields: d.Fields,
			})
			return nil
		}

		s.ExecuteTask(
			TaskStoreEvidence,
			StoreEvidenceRequest{
				UserID:   d.Input.UserID,
				Pathway:  MethodDocument,
				Evidence: Evidence{Document: d.evidence()},
			},
			task.Policy{
				MaxAttempts:  3,
				StartToClose: 10 * time.Second,
			},
		)

	case TaskStoreEvidence:
		if res.Err != nil {
			s.Fail(fmt.Sprintf("storing document evidence failed: %s", res.Err))
			return nil
		}

		s.Complete(DocumentResult{
			Valid:         true,
			ValidityScore: d.Score,
			Fields:        d.Fields,
			Evidence:      *d.evidence(),
		})
	}

	return nil
}

func (d *documentState) evidence() *DocumentEvidence {
	return &DocumentEvidence{
		DocumentType:    d.Input.DocumentType,
		DocumentURL:     d.Input.DocumentURL,
		ExtractedFields: d.Fields,
		ValidityChecks:  d.Checks,
		ValidityScore:   d.Score,
		CheckedAt:       d.CheckedAt,
	}
}

func (DocumentProcess) HandleTimer(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	_ process.Timer,
) error {
	return nil
}

func (DocumentProcess) HandleChildResult(
	_ context.Context,
	_ process.Root,
	_ process.Scope,
	_ process.ChildResult,
) error {
	return nil
}

func (DocumentProcess) HandleQuery(r process.Root, name string) (interface{}, error) {
	d := r.(*documentState)

	if name == QueryDocumentStatus {
		return DocumentStatus{
			Extracted:     d.Extracted,
			Checked:       d.Checked,
			Valid:         d.Valid,
			ValidityScore: d.Score,
		}, nil
	}

	return nil, UnknownQueryError{Query: name}
}
