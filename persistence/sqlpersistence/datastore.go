package sqlpersistence

import (
	"context"
	"database/sql"
	"sync"

	"github.com/vouchsafe/vouchsafe/internal/x/sqlx"
	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/persistence"
)

// dataStore is an implementation of persistence.DataStore for PostgreSQL.
type dataStore struct {
	db *sql.DB

	m       sync.RWMutex
	release func() error
}

func (ds *dataStore) AppendRecords(
	ctx context.Context,
	id string,
	gen, next uint64,
	records []*journal.Record,
) (err error) {
	defer sqlx.Recover(&err)

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

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actualGen, actualNext, ok := lockJournal(ctx, tx, id)

	if !ok {
		if gen != 0 || next != 0 {
			return persistence.ConflictError{
				InstanceID:         id,
				ExpectedGeneration: gen,
				ExpectedOffset:     next,
			}
		}

		sqlx.Exec(
			ctx,
			tx,
			`INSERT INTO vouchsafe_journal (
				instance_id,
				generation,
				next_offset
			) VALUES (
				$1, 0, 0
			)`,
			id,
		)
	} else if actualGen != gen || actualNext != next {
		return persistence.ConflictError{
			InstanceID:         id,
			ExpectedGeneration: gen,
			ExpectedOffset:     next,
			ActualGeneration:   actualGen,
			ActualOffset:       actualNext,
		}
	}

	for i, d := range data {
		sqlx.Exec(
			ctx,
			tx,
			`INSERT INTO vouchsafe_record (
				instance_id,
				generation,
				record_offset,
				data
			) VALUES (
				$1, $2, $3, $4
			)`,
			id,
			gen,
			next+uint64(i),
			d,
		)
	}

	sqlx.Exec(
		ctx,
		tx,
		`UPDATE vouchsafe_journal SET
			next_offset = $1
		WHERE instance_id = $2`,
		next+uint64(len(data)),
		id,
	)

	return tx.Commit()
}

func (ds *dataStore) LoadJournal(
	ctx context.Context,
	id string,
) (_ *persistence.Journal, err error) {
	defer sqlx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return nil, persistence.ErrDataStoreClosed
	}

	j := &persistence.Journal{}

	gen, ok := sqlx.TryQueryN(
		ctx,
		ds.db,
		`SELECT generation
		FROM vouchsafe_journal
		WHERE instance_id = $1`,
		id,
	)
	if !ok {
		return j, nil
	}

	j.Generation = gen

	rows := sqlx.Query(
		ctx,
		ds.db,
		`SELECT record_offset, data
		FROM vouchsafe_record
		WHERE instance_id = $1
		AND generation = $2
		ORDER BY record_offset`,
		id,
		gen,
	)
	defer rows.Close()

	for rows.Next() {
		var (
			offset uint64
			data   []byte
		)
		sqlx.Must(rows.Scan(&offset, &data))

		rec, err := journal.UnmarshalRecord(data)
		if err != nil {
			return nil, err
		}

		rec.Offset = offset
		j.Records = append(j.Records, rec)
	}

	return j, rows.Err()
}

func (ds *dataStore) ResetJournal(
	ctx context.Context,
	id string,
	gen uint64,
	seed []*journal.Record,
) (err error) {
	defer sqlx.Recover(&err)

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

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actualGen, _, ok := lockJournal(ctx, tx, id)

	if !ok || gen != actualGen+1 {
		return persistence.ConflictError{
			InstanceID:         id,
			ExpectedGeneration: gen,
			ActualGeneration:   actualGen,
		}
	}

	// Records from prior generations are discarded. This is the compaction
	// that bounds journal growth across continuations.
	sqlx.Exec(
		ctx,
		tx,
		`DELETE FROM vouchsafe_record
		WHERE instance_id = $1`,
		id,
	)

	for i, d := range data {
		sqlx.Exec(
			ctx,
			tx,
			`INSERT INTO vouchsafe_record (
				instance_id,
				generation,
				record_offset,
				data
			) VALUES (
				$1, $2, $3, $4
			)`,
			id,
			gen,
			uint64(i),
			d,
		)
	}

	sqlx.Exec(
		ctx,
		tx,
		`UPDATE vouchsafe_journal SET
			generation = $1,
			next_offset = $2
		WHERE instance_id = $3`,
		gen,
		uint64(len(data)),
		id,
	)

	return tx.Commit()
}

func (ds *dataStore) InstanceIDs(ctx context.Context) (_ []string, err error) {
	defer sqlx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return nil, persistence.ErrDataStoreClosed
	}

	rows := sqlx.Query(
		ctx,
		ds.db,
		`SELECT instance_id
		FROM vouchsafe_journal
		WHERE next_offset > 0`,
	)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		sqlx.Must(rows.Scan(&id))
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Close closes the data store.
//
// Closing a data-store causes any future persistence operations to return
// ErrDataStoreClosed. It does not close the underlying database.
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

// lockJournal locks the journal meta-data row for the given instance for the
// duration of the transaction.
//
// ok is false if the instance has no journal.
func lockJournal(
	ctx context.Context,
	tx *sql.Tx,
	id string,
) (gen, next uint64, ok bool) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT generation, next_offset
		FROM vouchsafe_journal
		WHERE instance_id = $1
		FOR UPDATE`,
		id,
	)

	err := row.Scan(&gen, &next)
	if err == sql.ErrNoRows {
		return 0, 0, false
	}
	sqlx.Must(err)

	return gen, next, true
}
