package verify

import "time"

// Evidence is the audit trail attached to a completed verification method.
//
// It is a closed set of variants; exactly one field is non-nil.
type Evidence struct {
	Document     *DocumentEvidence     `json:"document,omitempty"`
	Community    *CommunityEvidence    `json:"community,omitempty"`
	InPerson     *InPersonEvidence     `json:"in_person,omitempty"`
	TrustNetwork *TrustNetworkEvidence `json:"trust_network,omitempty"`
	Manual       *ManualEvidence       `json:"manual,omitempty"`
}

// DocumentEvidence is the audit trail of a document verification.
type DocumentEvidence struct {
	DocumentType    string
	DocumentURL     string
	ExtractedFields []string
	ValidityChecks  []string
	ValidityScore   float64
	CheckedAt       time.Time
}

// CommunityEvidence is the audit trail of a community validation round.
type CommunityEvidence struct {
	ValidatorsInvited int
	Approvals         int
	Rejections        int
	Required          int
	TimedOut          bool
	ClosedAt          time.Time
}

// InPersonEvidence is the audit trail of an in-person verification.
type InPersonEvidence struct {
	VerifierID  string
	Location    string
	ScheduledAt time.Time
	VerifiedAt  time.Time
}

// TrustNetworkEvidence is the audit trail of a trust-network strength
// calculation.
type TrustNetworkEvidence struct {
	Connections  int
	Strength     float64
	CalculatedAt time.Time
}

// ManualEvidence is the audit trail of a method recorded by an operator
// outside any automated pathway.
type ManualEvidence struct {
	Note       string
	RecordedAt time.Time
}
