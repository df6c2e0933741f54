// Package lock implements the cooperative advisory-lock facility.
//
// A lock is a named row with a caller-chosen handle and a lease. The
// manager enforces nothing beyond name uniqueness: holders must treat a
// successful acquire or renew as permission and must renew before the
// lease elapses. Expired rows are removed by SweepExpired, which any
// process may run.
package lock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/txn"
)

// Lock is one advisory lock row.
type Lock struct {
	Name       string
	Handle     string
	AcquiredAt time.Time
	RenewedAt  time.Time
	Lease      time.Duration
}

// ExpiresAt is the instant the lock lapses unless renewed.
func (l Lock) ExpiresAt() time.Time {
	return l.RenewedAt.Add(l.Lease)
}

// Manager owns the advisory_locks table.
type Manager struct {
	a   adapter.Adapter
	log *zap.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(a adapter.Adapter, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{a: a, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire inserts the lock row. A name collision with a live lock is a
// Conflict; the caller may sweep and retry.
func (m *Manager) Acquire(ctx context.Context, name, handle string, lease time.Duration) (Lock, error) {
	if name == "" {
		return Lock{}, fault.BadRequest("lock name must not be empty")
	}
	if lease <= 0 {
		return Lock{}, fault.BadRequest("lease duration must be positive")
	}

	now := m.now().UTC()
	c := txn.New(m.a)
	d := m.a.Dialect()

	err := txn.None(ctx, c,
		"INSERT INTO advisory_locks (name, handle, acquired_at, renewed_at, lease_ms) VALUES ("+
			d.Placeholder(1)+", "+d.Placeholder(2)+", "+d.Placeholder(3)+", "+d.Placeholder(4)+", "+d.Placeholder(5)+")",
		name, handle, now, now, lease.Milliseconds())
	if err != nil {
		if m.a.UniqueViolation(err, adapter.ConstraintLockName) {
			return Lock{}, fault.Conflict("lock %q is already held", name)
		}
		return Lock{}, err
	}

	m.log.Debug("advisory lock acquired",
		zap.String("name", name), zap.String("handle", handle), zap.Duration("lease", lease))
	return Lock{Name: name, Handle: handle, AcquiredAt: now, RenewedAt: now, Lease: lease}, nil
}

// Renew refreshes the lease of a lock held under the given handle.
// No matching row is NotFound.
func (m *Manager) Renew(ctx context.Context, name, handle string) (Lock, error) {
	now := m.now().UTC()
	c := txn.New(m.a)
	d := m.a.Dialect()

	row, err := txn.MaybeOne(ctx, c,
		"UPDATE advisory_locks SET renewed_at = "+d.Placeholder(1)+
			" WHERE name = "+d.Placeholder(2)+" AND handle = "+d.Placeholder(3)+
			" RETURNING name, handle, acquired_at, renewed_at, lease_ms",
		now, name, handle)
	if err != nil {
		return Lock{}, err
	}
	if row == nil {
		return Lock{}, fault.NotFound("lock %q is not held under handle %q", name, handle)
	}
	return scanLock(row)
}

// Release deletes the lock held under the given handle.
// No matching row is NotFound.
func (m *Manager) Release(ctx context.Context, name, handle string) error {
	c := txn.New(m.a)
	d := m.a.Dialect()

	row, err := txn.MaybeOne(ctx, c,
		"DELETE FROM advisory_locks WHERE name = "+d.Placeholder(1)+
			" AND handle = "+d.Placeholder(2)+" RETURNING name",
		name, handle)
	if err != nil {
		return err
	}
	if row == nil {
		return fault.NotFound("lock %q is not held under handle %q", name, handle)
	}
	m.log.Debug("advisory lock released", zap.String("name", name))
	return nil
}

// SweepExpired deletes every lock whose lease has lapsed and returns the
// removed names, for observability.
func (m *Manager) SweepExpired(ctx context.Context) ([]string, error) {
	now := m.now().UTC()
	c := txn.New(m.a)
	d := m.a.Dialect()

	var names []string
	err := txn.Atomic(ctx, c, func(tc txn.Context) error {
		rows, err := txn.All(ctx, tc,
			"SELECT name, renewed_at, lease_ms FROM advisory_locks")
		if err != nil {
			return err
		}
		for _, row := range rows {
			l, err := scanLock(row)
			if err != nil {
				return err
			}
			if l.ExpiresAt().After(now) {
				continue
			}
			if err := txn.None(ctx, tc,
				"DELETE FROM advisory_locks WHERE name = "+d.Placeholder(1), l.Name); err != nil {
				return err
			}
			names = append(names, l.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		m.log.Debug("expired advisory locks swept", zap.Strings("names", names))
	}
	return names, nil
}

func scanLock(row adapter.Row) (Lock, error) {
	var l Lock
	var err error
	if _, ok := row["name"]; ok {
		if l.Name, err = row.String("name"); err != nil {
			return Lock{}, err
		}
	}
	if _, ok := row["handle"]; ok {
		if l.Handle, err = row.String("handle"); err != nil {
			return Lock{}, err
		}
	}
	if _, ok := row["acquired_at"]; ok {
		if l.AcquiredAt, err = row.Time("acquired_at"); err != nil {
			return Lock{}, err
		}
	}
	if l.RenewedAt, err = row.Time("renewed_at"); err != nil {
		return Lock{}, err
	}
	leaseMS, err := row.Int64("lease_ms")
	if err != nil {
		return Lock{}, err
	}
	l.Lease = time.Duration(leaseMS) * time.Millisecond
	return l, nil
}
