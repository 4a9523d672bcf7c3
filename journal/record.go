package journal

import (
	"time"
)

// Record is a journal entry together with the metadata needed to correlate
// it with the activity that produced it.
//
// Event values inside records are always pointers to the event types defined
// in this package.
type Record struct {
	// Offset is the zero-based position of the record within its journal
	// generation. It is assigned by the persistence layer.
	Offset uint64

	// RecordID uniquely identifies the record.
	RecordID string

	// CausationID is the ID of the record that directly caused this one. For
	// records with no journaled cause it is equal to RecordID.
	CausationID string

	// CorrelationID is the ID of the first record in the causal chain that
	// this record belongs to.
	CorrelationID string

	// CreatedAt is the time at which the record was created.
	CreatedAt time.Time

	// Event is the journal event carried by this record.
	Event Event
}

// ID returns the record's ID.
func (r *Record) ID() string {
	return r.RecordID
}
