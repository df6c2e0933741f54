// Package migrate applies ordered DDL batches guarded by a stored version
// counter.
//
// The counter lives in a dedicated single-row table so both engines share
// one mechanism. Each version's batch runs in its own transaction together
// with the counter bump: a failing statement rolls back that entire
// version and migration stops, leaving the counter at the last version
// that fully applied. Progress across versions therefore persists even if
// a later version fails.
package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/txn"
)

// Batch is one version's ordered statements (DDL plus limited seed data).
type Batch []string

// Source resolves a version number to its batch. Returning ok=false means
// there is no such version and migration is complete.
type Source func(version int) (batch Batch, ok bool)

// Migrator applies batches from a Source against one backend.
type Migrator struct {
	a   adapter.Adapter
	log *zap.Logger
}

// New creates a Migrator.
func New(a adapter.Adapter, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{a: a, log: log}
}

// Run migrates the backend to the newest version the source knows.
// Returns the version the counter rests at.
func (m *Migrator) Run(ctx context.Context, source Source) (int, error) {
	c := txn.New(m.a)

	if err := m.ensureCounter(ctx, c); err != nil {
		return 0, err
	}

	version, err := m.currentVersion(ctx, c)
	if err != nil {
		return 0, err
	}

	for {
		next := version + 1
		batch, ok := source(next)
		if !ok {
			m.log.Info("migrations complete", zap.Int("version", version))
			return version, nil
		}

		err := txn.Atomic(ctx, c, func(tc txn.Context) error {
			for _, stmt := range batch {
				if _, err := tc.Execute(ctx, stmt); err != nil {
					return fault.Generic(err, "migration %d: %q", next, stmt)
				}
			}
			return m.setVersion(ctx, tc, next)
		})
		if err != nil {
			return version, fmt.Errorf("apply migration %d: %w", next, err)
		}

		m.log.Info("migration applied", zap.Int("version", next))
		version = next
	}
}

// ensureCounter bootstraps the counter table with version 0.
func (m *Migrator) ensureCounter(ctx context.Context, c txn.Context) error {
	if _, err := c.Execute(ctx,
		"CREATE TABLE IF NOT EXISTS migration_counter (version BIGINT NOT NULL)"); err != nil {
		return fault.Generic(err, "create migration counter")
	}
	row, err := txn.MaybeOne(ctx, c, "SELECT version FROM migration_counter")
	if err != nil {
		return err
	}
	if row == nil {
		return txn.None(ctx, c, "INSERT INTO migration_counter (version) VALUES (0)")
	}
	return nil
}

func (m *Migrator) currentVersion(ctx context.Context, c txn.Context) (int, error) {
	row, err := txn.One(ctx, c, "SELECT version FROM migration_counter")
	if err != nil {
		return 0, err
	}
	v, err := row.Int64("version")
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (m *Migrator) setVersion(ctx context.Context, c txn.Context, v int) error {
	d := m.a.Dialect()
	return txn.None(ctx, c,
		"UPDATE migration_counter SET version = "+d.Placeholder(1), int64(v))
}
