package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/vouchsafe/vouchsafe/internal/x/sqlx"
)

// CreateSchema creates the schema elements required by the PostgreSQL data
// store.
func CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`CREATE TABLE IF NOT EXISTS vouchsafe_journal (
			instance_id TEXT NOT NULL PRIMARY KEY,
			generation  BIGINT NOT NULL,
			next_offset BIGINT NOT NULL
		)`,
	)

	sqlx.Exec(
		ctx,
		db,
		`CREATE TABLE IF NOT EXISTS vouchsafe_record (
			instance_id TEXT NOT NULL,
			generation  BIGINT NOT NULL,
			record_offset BIGINT NOT NULL,
			data        BYTEA NOT NULL,

			PRIMARY KEY (instance_id, generation, record_offset)
		)`,
	)

	return nil
}

// DropSchema drops the schema elements required by the PostgreSQL data
// store.
func DropSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS vouchsafe_record`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS vouchsafe_journal`)

	return nil
}
