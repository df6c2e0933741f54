// Package sqlitedb implements the storage adapter over an embedded SQLite
// database.
//
// SQLite is a single-writer engine. The adapter therefore guards every
// top-level (non-transactional) statement and every root transaction with
// one process-wide gate; statements issued inside an open transaction
// bypass the gate, because the transaction itself is the unit of
// serialization for everything inside it.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
)

// uniqueColumns maps logical constraint ids onto the "table.column" text
// sqlite embeds in its UNIQUE violation messages.
var uniqueColumns = map[adapter.Constraint]string{
	adapter.ConstraintEntityName: "entities.name",
	adapter.ConstraintEntityUUID: "entities.uuid",
	adapter.ConstraintLockName:   "advisory_locks.name",
}

// DB is the SQLite-backed adapter.
type DB struct {
	db  *sql.DB
	log *zap.Logger

	// gate serializes top-level statements and root transactions.
	gate sync.Mutex
}

// Open creates or opens a SQLite database at the given path and applies
// the required pragmas. Idempotent.
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sqlite database: %w", err)
	}

	// One connection: the engine has a single writer and the gate already
	// serializes access, so a larger pool only invites SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	log.Debug("sqlite database opened", zap.String("path", path))
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// tx is a root transaction holding the write gate until it ends.
type tx struct {
	tx   *sql.Tx
	done func()
	once sync.Once
}

func (t *tx) Commit() error {
	defer t.once.Do(t.done)
	return t.tx.Commit()
}

func (t *tx) Rollback() error {
	defer t.once.Do(t.done)
	return t.tx.Rollback()
}

// Begin opens a root transaction. The write gate is held until the
// transaction commits or rolls back.
func (d *DB) Begin(ctx context.Context) (adapter.Tx, error) {
	d.gate.Lock()
	t, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.gate.Unlock()
		return nil, fault.Generic(err, "begin transaction")
	}
	return &tx{tx: t, done: d.gate.Unlock}, nil
}

// Execute runs one parameterized statement. With a nil tx the statement
// acquires the write gate for its own duration; inside a transaction the
// gate is already held by Begin.
func (d *DB) Execute(ctx context.Context, t adapter.Tx, query string, args ...any) (adapter.Rows, error) {
	if t != nil {
		st, ok := t.(*tx)
		if !ok {
			return nil, fault.Generic(nil, "foreign transaction handle %T", t)
		}
		return queryRows(ctx, st.tx, query, args)
	}

	d.gate.Lock()
	defer d.gate.Unlock()
	return queryRows(ctx, d.db, query, args)
}

// UniqueViolation reports whether err is a UNIQUE violation of the named
// constraint. sqlite identifies the violated constraint only through the
// "UNIQUE constraint failed: table.column" message text.
func (d *DB) UniqueViolation(err error, c adapter.Constraint) bool {
	var serr sqlite3.Error
	if !asSQLiteError(err, &serr) {
		return false
	}
	if serr.Code != sqlite3.ErrConstraint {
		return false
	}
	if serr.ExtendedCode != sqlite3.ErrConstraintUnique &&
		serr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	col, ok := uniqueColumns[c]
	if !ok {
		return false
	}
	return containsColumn(serr.Error(), col)
}

// Dialect returns the sqlite SQL dialect hooks.
func (d *DB) Dialect() adapter.Dialect {
	return dialect{}
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q querier, query string, args []any) (adapter.Rows, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
