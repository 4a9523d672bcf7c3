package sqlx

import (
	"context"
	"database/sql"
)

// DB is an interface for the subset of database operations used by this
// package. It is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ DB = (*sql.DB)(nil)
	_ DB = (*sql.Tx)(nil)
)

// Recover recovers from a panic caused by one of the Must*() functions.
//
// It is intended to be used in a defer statement. The error that caused the
// panic is assigned to *err.
func Recover(err *error) {
	if err == nil {
		panic("err must be a non-nil pointer")
	}

	switch v := recover().(type) {
	case PanicSentinel:
		*err = v.Cause
	case nil:
		return
	default:
		panic(v)
	}
}

// PanicSentinel is a wrapper value used to identify panics that are caused
// by one of the Must*() functions.
type PanicSentinel struct {
	// Cause is the error that caused the panic.
	Cause error
}

// Must panics if err is non-nil.
func Must(err error) {
	if err != nil {
		panic(PanicSentinel{err})
	}
}

// Exec executes a statement on the given DB.
func Exec(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) sql.Result {
	res, err := db.ExecContext(ctx, query, args...)
	Must(err)
	return res
}

// QueryN executes a query that selects a single numeric value from the given
// DB.
func QueryN(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) uint64 {
	row := db.QueryRowContext(ctx, query, args...)

	var n uint64
	err := row.Scan(&n)
	Must(err)

	return n
}

// TryQueryN executes a query that selects a single numeric value from the
// given DB.
//
// It returns false if the query selects no rows.
func TryQueryN(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) (uint64, bool) {
	row := db.QueryRowContext(ctx, query, args...)

	var n uint64
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false
	}
	Must(err)

	return n, true
}

// Query executes a query on the given DB.
func Query(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) *sql.Rows {
	rows, err := db.QueryContext(ctx, query, args...)
	Must(err)
	return rows
}
