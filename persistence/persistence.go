package persistence

import (
	"context"
	"errors"

	"github.com/vouchsafe/vouchsafe/journal"
)

// ErrDataStoreClosed is returned when performing any persistence operation on
// a closed data-store.
var ErrDataStoreClosed = errors.New("data store is closed")

// ErrDataStoreLocked is returned by Provider.Open() if the data store is
// already open for exclusive use by another engine.
var ErrDataStoreLocked = errors.New("data store is locked")

// Provider is an interface used by the engine to obtain a data store.
type Provider interface {
	// Open returns the data store used to persist process journals.
	Open(ctx context.Context) (DataStore, error)
}

// Journal is the loaded history of a single process instance within its
// current generation.
type Journal struct {
	// Generation identifies the journal generation. It starts at zero and
	// increases by one each time the instance continues into a fresh
	// history.
	Generation uint64

	// Records is the ordered history of the generation. Offsets are
	// contiguous, starting at zero.
	Records []*journal.Record
}

// NextOffset returns the offset that the next appended record will occupy.
func (j *Journal) NextOffset() uint64 {
	return uint64(len(j.Records))
}

// DataStore is an interface used by the engine to persist and retrieve
// process journals.
//
// All writes are atomic. A batch of records either becomes fully visible or
// not at all.
type DataStore interface {
	// AppendRecords atomically appends a batch of records to the journal of
	// the given instance.
	//
	// gen must equal the journal's current generation and next the journal's
	// next unused offset, otherwise a ConflictError is returned and nothing
	// is persisted. Appending to an instance with no journal succeeds only
	// with gen and next both zero.
	AppendRecords(
		ctx context.Context,
		id string,
		gen, next uint64,
		records []*journal.Record,
	) error

	// LoadJournal loads the current generation of the given instance's
	// journal.
	//
	// If the instance has never been persisted, it returns an empty journal
	// at generation zero.
	LoadJournal(ctx context.Context, id string) (*Journal, error)

	// ResetJournal atomically discards the instance's journal and begins
	// generation gen seeded with the given records.
	//
	// gen must be exactly one greater than the current generation, otherwise
	// a ConflictError is returned.
	ResetJournal(
		ctx context.Context,
		id string,
		gen uint64,
		seed []*journal.Record,
	) error

	// InstanceIDs returns the IDs of all instances that have a persisted
	// journal.
	InstanceIDs(ctx context.Context) ([]string, error)

	// Close closes the data store, preventing further reads and writes.
	Close() error
}
