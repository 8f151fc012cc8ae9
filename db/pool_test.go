package db

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheShubhendra/marriagebot/cfg"
)

var testDatabaseSeq atomic.Uint64

// testPoolConfig yields a sqlite pool config backed by a process-private
// in-memory database. cache=shared lets every pooled connection see the same
// database.
func testPoolConfig(poolSize int) cfg.DatabaseConfiguration {
	return cfg.DatabaseConfiguration{
		Enabled:  true,
		Driver:   "sqlite3",
		DSN:      fmt.Sprintf("file:pool_test_%d?mode=memory&cache=shared", testDatabaseSeq.Add(1)),
		PoolSize: poolSize,
	}
}

func newTestPool(t *testing.T, poolSize int) *PoolManager {
	t.Helper()

	pool, err := NewPoolManager(testPoolConfig(poolSize))
	require.NoError(t, err)
	require.NoError(t, pool.Open(context.Background()))
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestNewPoolManager_RejectsDisabledDatabase(t *testing.T) {
	config := testPoolConfig(1)
	config.Enabled = false

	_, err := NewPoolManager(config)
	assert.ErrorIs(t, err, ErrDatabaseDisabled)
}

func TestNewPoolManager_RejectsZeroPoolSize(t *testing.T) {
	_, err := NewPoolManager(testPoolConfig(0))
	assert.Error(t, err)
}

func TestPoolManager_DoubleOpen(t *testing.T) {
	pool := newTestPool(t, 2)

	err := pool.Open(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestPoolManager_ReopenAfterClose(t *testing.T) {
	pool := newTestPool(t, 2)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Open(context.Background()))

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Release(lease))
}

func TestPoolManager_AcquireBeforeOpen(t *testing.T) {
	pool, err := NewPoolManager(testPoolConfig(1))
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPoolManager_AcquireBlocksAtPoolBound(t *testing.T) {
	pool := newTestPool(t, 2)

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// Pool is exhausted: a third acquire waits until timeout
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = pool.Acquire(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Releasing one frees the third caller
	require.NoError(t, pool.Release(first))
	third, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pool.Release(second))
	require.NoError(t, pool.Release(third))
}

func TestPoolManager_ReleaseWithOpenTransaction(t *testing.T) {
	pool := newTestPool(t, 2)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, lease.Begin(context.Background()))

	err = pool.Release(lease)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	// The lease stays usable: finish the transaction, then release for real
	require.NoError(t, lease.Rollback())
	require.NoError(t, pool.Release(lease))
}

func TestPoolManager_DoubleRelease(t *testing.T) {
	pool := newTestPool(t, 2)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Release(lease))

	err = pool.Release(lease)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestLease_ExecuteOnReleasedLease(t *testing.T) {
	pool := newTestPool(t, 2)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Release(lease))

	_, err = lease.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestLease_ReadWithNoRowsReturnsEmptySlice(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(lease)

	_, err = lease.Execute(ctx, "CREATE TABLE votes (user_id BIGINT)")
	require.NoError(t, err)

	rows, err := lease.Execute(ctx, "SELECT user_id FROM votes WHERE user_id = ?", 42)
	require.NoError(t, err)
	require.NotNil(t, rows)
	assert.Len(t, rows, 0)
}

func TestLease_MutationReturnsNilRowSet(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(lease)

	_, err = lease.Execute(ctx, "CREATE TABLE votes (user_id BIGINT)")
	require.NoError(t, err)

	rows, err := lease.Execute(ctx, "INSERT INTO votes (user_id) VALUES (?)", 1)
	require.NoError(t, err)
	assert.Nil(t, rows)

	rows, err = lease.Execute(ctx, "SELECT user_id FROM votes")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestLease_BeginTwice(t *testing.T) {
	pool := newTestPool(t, 2)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(lease)

	require.NoError(t, lease.Begin(context.Background()))
	err = lease.Begin(context.Background())
	assert.ErrorIs(t, err, ErrTransactionActive)

	require.NoError(t, lease.Rollback())
}

func TestLease_CommitAndRollbackWithoutTransaction(t *testing.T) {
	pool := newTestPool(t, 2)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(lease)

	assert.ErrorIs(t, lease.Commit(), ErrNoTransaction)
	assert.ErrorIs(t, lease.Rollback(), ErrNoTransaction)
}

func TestLease_RollbackDiscardsWrites(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(lease)

	_, err = lease.Execute(ctx, "CREATE TABLE votes (user_id BIGINT)")
	require.NoError(t, err)

	require.NoError(t, lease.Begin(ctx))
	_, err = lease.Execute(ctx, "INSERT INTO votes (user_id) VALUES (?)", 1)
	require.NoError(t, err)
	require.NoError(t, lease.Rollback())

	rows, err := lease.Execute(ctx, "SELECT user_id FROM votes")
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

func TestLease_WithTransactionReturnsCausativeErrorUnchanged(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(lease)

	boom := errors.New("handler rejected the write")
	err = lease.WithTransaction(ctx, func(ctx context.Context) error {
		return boom
	})
	// Not wrapped, not joined: rollback succeeded so the original error
	// passes through untouched
	assert.Equal(t, boom, err)

	// The transaction marker is cleared on the failure path
	require.NoError(t, lease.Begin(ctx))
	require.NoError(t, lease.Rollback())
}

func TestLease_WithTransactionCommitsOnSuccess(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(lease)

	_, err = lease.Execute(ctx, "CREATE TABLE votes (user_id BIGINT)")
	require.NoError(t, err)

	err = lease.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := lease.Execute(ctx, "INSERT INTO votes (user_id) VALUES (?)", 7)
		return err
	})
	require.NoError(t, err)

	rows, err := lease.Execute(ctx, "SELECT user_id FROM votes")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 7, rows[0]["user_id"])
}
