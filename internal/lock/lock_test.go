package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostore/folio/internal/adapter/sqlitedb"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/migrate"
	"github.com/foliostore/folio/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, *testutil.ManualClock) {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "lock_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrate.New(db, nil).Run(context.Background(), migrate.Schema("sqlite"))
	require.NoError(t, err)

	clock := testutil.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(db, nil, WithNow(clock.Now)), clock
}

func TestAcquire_ConflictBeforeExpiry(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "x", "1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", l.Name)
	assert.Equal(t, l.AcquiredAt, l.RenewedAt)

	_, err = m.Acquire(ctx, "x", "2", time.Second)
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))
}

func TestSweepExpired_FreesTheName(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "x", "1", time.Second)
	require.NoError(t, err)

	// Not yet expired: sweep removes nothing.
	clock.Advance(999 * time.Millisecond)
	names, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	// Lease elapsed: sweep removes it and the name is free again.
	clock.Advance(time.Millisecond)
	names, err = m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)

	_, err = m.Acquire(ctx, "x", "3", time.Second)
	require.NoError(t, err)
}

func TestRenew_ExtendsLease(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "job", "h1", time.Second)
	require.NoError(t, err)
	firstExpiry := l.ExpiresAt()

	clock.Advance(700 * time.Millisecond)
	renewed, err := m.Renew(ctx, "job", "h1")
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt().After(firstExpiry))

	// The original acquire instant is preserved.
	assert.Equal(t, l.AcquiredAt, renewed.AcquiredAt)

	// Sweep after the original expiry but before the renewed one keeps it.
	clock.Advance(500 * time.Millisecond)
	names, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRenew_WrongHandleIsNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "job", "h1", time.Second)
	require.NoError(t, err)

	_, err = m.Renew(ctx, "job", "h2")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestRelease(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "job", "h1", time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, "job", "h1"))

	// Released: the name is immediately reusable.
	_, err = m.Acquire(ctx, "job", "h2", time.Second)
	require.NoError(t, err)

	// Releasing again under the old handle finds nothing.
	err = m.Release(ctx, "job", "h1")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestAcquire_BadRequest(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "", "h", time.Second)
	assert.True(t, fault.IsBadRequest(err))

	_, err = m.Acquire(ctx, "x", "h", 0)
	assert.True(t, fault.IsBadRequest(err))
}
