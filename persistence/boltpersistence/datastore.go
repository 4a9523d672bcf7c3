package boltpersistence

import (
	"context"
	"sync"

	"github.com/vouchsafe/vouchsafe/internal/x/bboltx"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
	"go.etcd.io/bbolt"
)

var (
	// journalBucketKey is the key for the root bucket containing process
	// journals.
	//
	// The keys within it are process instance IDs. The values are buckets
	// with a "generation" key holding the current generation number and a
	// "records" sub-bucket mapping big-endian offsets to marshaled records.
	journalBucketKey = []byte("journal")

	generationKey    = []byte("generation")
	recordsBucketKey = []byte("records")
)

// dataStore is an implementation of persistence.DataStore for BoltDB.
type dataStore struct {
	db *bbolt.DB

	m       sync.RWMutex
	release func() error
}

func (ds *dataStore) AppendRecords(
	ctx context.Context,
	id string,
	gen, next uint64,
	records []*journal.Record,
) (err error) {
	defer bboltx.Recover(&err)

	data := make([][]byte, len(records))
	for i, rec := range records {
		d, err := journal.MarshalRecord(rec)
		if err != nil {
			return err
		}
		data[i] = d
	}

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.ErrDataStoreClosed
	}

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(tx, journalBucketKey, []byte(id))
			records := bboltx.CreateBucketIfNotExists(b, recordsBucketKey)

			actualGen := unmarshalUint64(b.Get(generationKey))
			actualNext := records.Sequence()

			if actualGen != gen || actualNext != next {
				bboltx.Must(persistence.ConflictError{
					InstanceID:         id,
					ExpectedGeneration: gen,
					ExpectedOffset:     next,
					ActualGeneration:   actualGen,
					ActualOffset:       actualNext,
				})
			}

			for i, d := range data {
				bboltx.Put(records, marshalUint64(next+uint64(i)), d)
			}

			bboltx.Must(records.SetSequence(next + uint64(len(data))))
		},
	)

	return nil
}

func (ds *dataStore) LoadJournal(
	ctx context.Context,
	id string,
) (_ *persistence.Journal, err error) {
	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return nil, persistence.ErrDataStoreClosed
	}

	j := &persistence.Journal{}

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b, ok := bboltx.TryBucket(tx, journalBucketKey, []byte(id))
			if !ok {
				return
			}

			j.Generation = unmarshalUint64(b.Get(generationKey))

			records, ok := bboltx.TryBucket(b, recordsBucketKey)
			if !ok {
				return
			}

			bboltx.Must(records.ForEach(func(k, v []byte) error {
				rec, err := journal.UnmarshalRecord(v)
				if err != nil {
					return err
				}

				rec.Offset = unmarshalUint64(k)
				j.Records = append(j.Records, rec)

				return nil
			}))
		},
	)

	return j, nil
}

func (ds *dataStore) ResetJournal(
	ctx context.Context,
	id string,
	gen uint64,
	seed []*journal.Record,
) (err error) {
	defer bboltx.Recover(&err)

	data := make([][]byte, len(seed))
	for i, rec := range seed {
		d, err := journal.MarshalRecord(rec)
		if err != nil {
			return err
		}
		data[i] = d
	}

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.ErrDataStoreClosed
	}

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(tx, journalBucketKey, []byte(id))

			actualGen := unmarshalUint64(b.Get(generationKey))

			if gen != actualGen+1 {
				bboltx.Must(persistence.ConflictError{
					InstanceID:         id,
					ExpectedGeneration: gen,
					ActualGeneration:   actualGen,
				})
			}

			bboltx.DeleteBucket(b, recordsBucketKey)
			records := bboltx.CreateBucketIfNotExists(b, recordsBucketKey)

			for i, d := range data {
				bboltx.Put(records, marshalUint64(uint64(i)), d)
			}

			bboltx.Must(records.SetSequence(uint64(len(data))))
			bboltx.Put(b, generationKey, marshalUint64(gen))
		},
	)

	return nil
}

func (ds *dataStore) InstanceIDs(ctx context.Context) (_ []string, err error) {
	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return nil, persistence.ErrDataStoreClosed
	}

	var ids []string

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b, ok := bboltx.TryBucket(tx, journalBucketKey)
			if !ok {
				return
			}

			bboltx.Must(b.ForEach(func(k, v []byte) error {
				if v == nil {
					ids = append(ids, string(k))
				}
				return nil
			}))
		},
	)

	return ids, nil
}

// Close closes the data store.
//
// Closing a data-store causes any future persistence operations to return
// ErrDataStoreClosed.
func (ds *dataStore) Close() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.release == nil {
		return persistence.ErrDataStoreClosed
	}

	r := ds.release
	ds.db = nil
	ds.release = nil

	return r()
}
