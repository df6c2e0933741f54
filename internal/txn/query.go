package txn

import (
	"context"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
)

// The helpers below enforce row-count contracts over adapter results.
// A violated contract signals a bug or data corruption, never a caller
// mistake, so violations surface as Generic faults.
//
// Driver errors are wrapped here, once, at the query-execution boundary.
// The wrap preserves the cause, so adapter.UniqueViolation still
// classifies wrapped errors via errors.As.

// All runs a query and returns every row.
func All(ctx context.Context, c Context, query string, args ...any) (adapter.Rows, error) {
	rows, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, fault.Generic(err, "execute query")
	}
	return rows, nil
}

// One runs a query that must return exactly one row.
func One(ctx context.Context, c Context, query string, args ...any) (adapter.Row, error) {
	rows, err := All(ctx, c, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fault.Generic(nil, "expected exactly one row, got %d", len(rows))
	}
	return rows[0], nil
}

// MaybeOne runs a query that must return zero or one rows. A zero-row
// result is (nil, nil); callers decide whether that is a NotFound.
func MaybeOne(ctx context.Context, c Context, query string, args ...any) (adapter.Row, error) {
	rows, err := All(ctx, c, query, args...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, fault.Generic(nil, "expected at most one row, got %d", len(rows))
	}
}

// None runs a statement that must return no rows.
func None(ctx context.Context, c Context, query string, args ...any) error {
	rows, err := All(ctx, c, query, args...)
	if err != nil {
		return err
	}
	if len(rows) != 0 {
		return fault.Generic(nil, "expected no rows, got %d", len(rows))
	}
	return nil
}
