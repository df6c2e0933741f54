// Package adapter defines the capability contract every storage backend
// must provide, plus the pieces that are backend-independent: logical
// constraint identifiers, savepoint scoping, row conversion helpers, and
// the opaque cursor codec.
//
// Backends (sqlitedb, postgresdb) implement Adapter. Everything above this
// package speaks in terms of Adapter, Tx and Rows; no driver types leak
// upward.
package adapter

import (
	"context"
	"time"

	"github.com/foliostore/folio/internal/fault"
)

// Row is one result row, keyed by column name.
type Row map[string]any

// Rows is an ordered result set.
type Rows []Row

// Tx is an open root transaction on a backend.
//
// A Tx is expected to run to Commit or Rollback; no mid-flight cancellation
// is defined at this layer.
type Tx interface {
	Commit() error
	Rollback() error
}

// Constraint names a uniqueness constraint in backend-independent terms.
// Each backend maps these onto its own constraint identification scheme.
type Constraint string

const (
	// ConstraintEntityName is the unique display-name constraint.
	ConstraintEntityName Constraint = "entities_name_key"

	// ConstraintEntityUUID is the unique external-id constraint.
	ConstraintEntityUUID Constraint = "entities_uuid_key"

	// ConstraintLockName is the unique advisory-lock name constraint.
	ConstraintLockName Constraint = "advisory_locks_name_key"
)

// Adapter is the minimal capability set a backend must provide.
type Adapter interface {
	// Execute runs a parameterized statement and returns any result rows.
	// If tx is non-nil the statement runs inside that transaction;
	// otherwise it runs as its own implicit transaction.
	Execute(ctx context.Context, tx Tx, query string, args ...any) (Rows, error)

	// Begin opens a root transaction.
	Begin(ctx context.Context) (Tx, error)

	// UniqueViolation reports whether err is a uniqueness violation of the
	// named constraint. This is the single classification point turning
	// driver errors into typed Conflict faults upstream.
	UniqueViolation(err error, c Constraint) bool

	// Dialect exposes the SQL-dialect hooks the query builders need.
	Dialect() Dialect

	// Close releases the underlying connection pool.
	Close() error
}

// Dialect captures the per-engine SQL differences the builders care about.
type Dialect interface {
	// Name identifies the dialect ("postgres" or "sqlite").
	Name() string

	// Placeholder returns the parameter placeholder for 1-based position n.
	Placeholder(n int) string

	// TextFilter returns a predicate fragment restricting entities.id to
	// rows of the named free-text index matching the parameter at 1-based
	// position n.
	TextFilter(index string, n int) string
}

// Int64 converts a column value to int64.
// Backends may surface integers as int64 or int.
func (r Row) Int64(col string) (int64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fault.Generic(nil, "column %q missing from row", col)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, fault.Generic(nil, "column %q: expected integer, got %T", col, v)
	}
}

// NullInt64 converts a nullable column value to *int64 (nil for SQL NULL).
func (r Row) NullInt64(col string) (*int64, error) {
	v, ok := r[col]
	if !ok {
		return nil, fault.Generic(nil, "column %q missing from row", col)
	}
	if v == nil {
		return nil, nil
	}
	n, err := r.Int64(col)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// String converts a column value to string. Byte slices are accepted
// because sqlite surfaces TEXT built from blobs that way.
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok {
		return "", fault.Generic(nil, "column %q missing from row", col)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fault.Generic(nil, "column %q: expected string, got %T", col, v)
	}
}

// Bool converts a column value to bool. sqlite has no boolean type and
// surfaces 0/1 integers.
func (r Row) Bool(col string) (bool, error) {
	v, ok := r[col]
	if !ok {
		return false, fault.Generic(nil, "column %q missing from row", col)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	default:
		return false, fault.Generic(nil, "column %q: expected bool, got %T", col, v)
	}
}

// Time converts a column value to time.Time.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok {
		return time.Time{}, fault.Generic(nil, "column %q missing from row", col)
	}
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, fault.Generic(err, "column %q: unparseable timestamp", col)
		}
		return t, nil
	default:
		return time.Time{}, fault.Generic(nil, "column %q: expected timestamp, got %T", col, v)
	}
}

// Bytes converts a column value to a byte slice. Strings are accepted
// because postgres surfaces jsonb as text.
func (r Row) Bytes(col string) ([]byte, error) {
	v, ok := r[col]
	if !ok {
		return nil, fault.Generic(nil, "column %q missing from row", col)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case nil:
		return nil, nil
	default:
		return nil, fault.Generic(nil, "column %q: expected bytes, got %T", col, v)
	}
}
