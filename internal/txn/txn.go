// Package txn provides transaction scoping over a storage adapter, plus
// thin query helpers that enforce row-count contracts.
//
// Every mutating store operation runs through Atomic so that a transition
// is either fully visible or not at all. Read paths use the query helpers
// directly, with or without an open transaction.
package txn

import (
	"context"
	"fmt"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
)

// Context couples an adapter with an optional open transaction. A zero Tx
// means statements run as their own implicit transactions.
type Context struct {
	Adapter adapter.Adapter
	Tx      adapter.Tx
}

// New returns a Context with no open transaction.
func New(a adapter.Adapter) Context {
	return Context{Adapter: a}
}

// InTransaction reports whether a transaction is open.
func (c Context) InTransaction() bool {
	return c.Tx != nil
}

// Execute runs one statement in this context's scope.
func (c Context) Execute(ctx context.Context, query string, args ...any) (adapter.Rows, error) {
	return c.Adapter.Execute(ctx, c.Tx, query, args...)
}

// Atomic runs fn as one atomic unit.
//
// Without an open transaction, a root transaction is begun and committed
// when fn succeeds, or rolled back when it fails. With one already open,
// fn runs inside a savepoint so that its failure rolls back only its own
// statements and leaves the enclosing transaction alive.
func Atomic(ctx context.Context, c Context, fn func(tc Context) error) error {
	if c.InTransaction() {
		sp, err := adapter.BeginNested(ctx, c.Adapter, c.Tx)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("%w (savepoint rollback also failed: %v)", err, rbErr)
			}
			return err
		}
		return sp.Release(ctx)
	}

	tx, err := c.Adapter.Begin(ctx)
	if err != nil {
		return err
	}
	inner := Context{Adapter: c.Adapter, Tx: tx}
	if err := fn(inner); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault.Generic(err, "commit transaction")
	}
	return nil
}
