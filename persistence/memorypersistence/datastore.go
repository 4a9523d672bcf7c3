package memorypersistence

import (
	"context"

	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
)

// dataStore is an implementation of the persistence.DataStore interface that
// stores journals in memory.
type dataStore struct {
	provider *Provider
	closed   bool
}

func (ds *dataStore) AppendRecords(
	ctx context.Context,
	id string,
	gen, next uint64,
	records []*journal.Record,
) error {
	// Marshal before taking the lock so that a marshaling failure leaves
	// the journal untouched.
	data := make([][]byte, len(records))
	for i, rec := range records {
		d, err := journal.MarshalRecord(rec)
		if err != nil {
			return err
		}
		data[i] = d
	}

	ds.provider.m.Lock()
	defer ds.provider.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	s := ds.provider.get(id)

	if s.generation != gen || uint64(len(s.records)) != next {
		return persistence.ConflictError{
			InstanceID:         id,
			ExpectedGeneration: gen,
			ExpectedOffset:     next,
			ActualGeneration:   s.generation,
			ActualOffset:       uint64(len(s.records)),
		}
	}

	s.records = append(s.records, data...)

	return nil
}

func (ds *dataStore) LoadJournal(
	ctx context.Context,
	id string,
) (*persistence.Journal, error) {
	ds.provider.m.Lock()
	defer ds.provider.m.Unlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	s := ds.provider.get(id)

	j := &persistence.Journal{
		Generation: s.generation,
	}

	for i, data := range s.records {
		rec, err := journal.UnmarshalRecord(data)
		if err != nil {
			return nil, err
		}

		rec.Offset = uint64(i)
		j.Records = append(j.Records, rec)
	}

	return j, nil
}

func (ds *dataStore) ResetJournal(
	ctx context.Context,
	id string,
	gen uint64,
	seed []*journal.Record,
) error {
	data := make([][]byte, len(seed))
	for i, rec := range seed {
		d, err := journal.MarshalRecord(rec)
		if err != nil {
			return err
		}
		data[i] = d
	}

	ds.provider.m.Lock()
	defer ds.provider.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	s := ds.provider.get(id)

	if gen != s.generation+1 {
		return persistence.ConflictError{
			InstanceID:         id,
			ExpectedGeneration: gen,
			ActualGeneration:   s.generation,
			ActualOffset:       uint64(len(s.records)),
		}
	}

	s.generation = gen
	s.records = data

	return nil
}

func (ds *dataStore) InstanceIDs(ctx context.Context) ([]string, error) {
	ds.provider.m.Lock()
	defer ds.provider.m.Unlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	var ids []string
	for id, s := range ds.provider.journals {
		if len(s.records) != 0 {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (ds *dataStore) Close() error {
	ds.provider.m.Lock()
	defer ds.provider.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.closed = true

	return nil
}
