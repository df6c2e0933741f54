// Package postgresdb implements the storage adapter over PostgreSQL using
// the pgx driver.
//
// Postgres is a multi-writer engine with MVCC; unlike the sqlite adapter
// no process-wide gate is needed, the backend's own locking suffices.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
)

// uniqueViolation is the SQLSTATE class for unique constraint violations.
const uniqueViolation = "23505"

// DB is the PostgreSQL-backed adapter.
type DB struct {
	db  *sql.DB
	log *zap.Logger
}

// Options tune the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to the database at the given DSN.
func Open(dsn string, opts Options, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	log.Debug("postgres database opened")
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.db.Close()
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }

// Begin opens a root transaction.
func (d *DB) Begin(ctx context.Context) (adapter.Tx, error) {
	t, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Generic(err, "begin transaction")
	}
	return &tx{tx: t}, nil
}

// Execute runs one parameterized statement, inside t when non-nil.
func (d *DB) Execute(ctx context.Context, t adapter.Tx, query string, args ...any) (adapter.Rows, error) {
	var rows *sql.Rows
	var err error
	if t != nil {
		pt, ok := t.(*tx)
		if !ok {
			return nil, fault.Generic(nil, "foreign transaction handle %T", t)
		}
		rows, err = pt.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = d.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// UniqueViolation reports whether err is a unique violation of the named
// constraint. Postgres reports the violated constraint by name, and the
// migrations name constraints with the same identifiers the adapter
// contract declares, so this is a direct comparison.
func (d *DB) UniqueViolation(err error, c adapter.Constraint) bool {
	var perr *pgconn.PgError
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Code == uniqueViolation && perr.ConstraintName == string(c)
}

// Dialect returns the postgres SQL dialect hooks.
func (d *DB) Dialect() adapter.Dialect {
	return dialect{}
}

func collectRows(rows *sql.Rows) (adapter.Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fault.Generic(err, "read result columns")
	}

	var out adapter.Rows
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fault.Generic(err, "scan result row")
		}
		row := make(adapter.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
