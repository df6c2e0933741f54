package adapter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/foliostore/folio/internal/fault"
)

// savepointSeq generates process-unique savepoint names. SAVEPOINT names
// only need to be unique within one transaction, but a global counter
// keeps nested scopes unambiguous in logs.
var savepointSeq atomic.Int64

// Savepoint is a nested transaction scope inside an open root transaction.
// Rolling back a savepoint undoes only the statements issued since it was
// opened; the enclosing transaction stays alive.
//
// SAVEPOINT / RELEASE / ROLLBACK TO are identical SQL on both engines, so
// the implementation is shared here rather than per backend.
type Savepoint struct {
	name string
	a    Adapter
	tx   Tx
	done bool
}

// BeginNested opens a savepoint inside tx.
func BeginNested(ctx context.Context, a Adapter, tx Tx) (*Savepoint, error) {
	if tx == nil {
		return nil, fault.Generic(nil, "savepoint requires an open transaction")
	}
	name := fmt.Sprintf("sp_%d", savepointSeq.Add(1))
	if _, err := a.Execute(ctx, tx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("begin nested: %w", err)
	}
	return &Savepoint{name: name, a: a, tx: tx}, nil
}

// Release commits the savepoint into the enclosing transaction.
func (s *Savepoint) Release(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := s.a.Execute(ctx, s.tx, "RELEASE SAVEPOINT "+s.name); err != nil {
		return fmt.Errorf("release nested: %w", err)
	}
	return nil
}

// Rollback undoes all statements since the savepoint was opened, leaving
// the enclosing transaction alive. Safe to call after Release (no-op), so
// it can be deferred.
func (s *Savepoint) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := s.a.Execute(ctx, s.tx, "ROLLBACK TO SAVEPOINT "+s.name); err != nil {
		return fmt.Errorf("rollback nested: %w", err)
	}
	// Discard the savepoint itself now that its effects are undone.
	if _, err := s.a.Execute(ctx, s.tx, "RELEASE SAVEPOINT "+s.name); err != nil {
		return fmt.Errorf("rollback nested: %w", err)
	}
	return nil
}
