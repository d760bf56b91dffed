package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/ems/internal/employee/db"
	"github.com/wareflow/ems/internal/employee/models"
	"go.uber.org/zap/zaptest"
)

func setupManager(t *testing.T) (*Manager, *db.Repository) {
	repo, err := db.NewRepository(&db.Config{Path: ":memory:"})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return NewManager(repo, zaptest.NewLogger(t)), repo
}

var (
	holderA = Identity{Hostname: "hostA", Username: "alice", PID: 101, AppVersion: "1.0.0"}
	holderB = Identity{Hostname: "hostB", Username: "bob", PID: 202, AppVersion: "1.0.0"}
)

// backdate pushes the stored heartbeat into the past to simulate a holder
// that stopped renewing.
func backdate(t *testing.T, repo *db.Repository, age time.Duration) {
	err := repo.Exec(context.Background(),
		"UPDATE app_locks SET last_heartbeat = ?", time.Now().Add(-age))
	require.NoError(t, err)
}

// TestAcquireEmptyTable verifies acquisition against an empty lock table.
func TestAcquireEmptyTable(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	result, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	assert.True(t, result.Acquired)

	stored, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hostA", stored.Hostname)
	assert.Equal(t, 101, stored.PID)
	assert.Equal(t, stored.LockedAt, stored.LastHeartbeat, "fresh lock starts with locked_at == last_heartbeat")
}

// TestAcquireDeniedReportsHolder verifies that a second acquirer is denied
// and told who has the lock.
func TestAcquireDeniedReportsHolder(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)

	result, err := m.Acquire(ctx, holderB)
	require.NoError(t, err, "a denied acquire is a result, not an error")
	assert.False(t, result.Acquired)
	require.NotNil(t, result.Holder)
	assert.Equal(t, "hostA", result.Holder.Hostname)
	assert.False(t, result.Holder.LockedAt.IsZero(), "denial should carry the acquisition time")
}

// TestAcquireReclaimsStaleLock simulates three minutes without a heartbeat:
// the next acquirer takes over and the old token is gone.
func TestAcquireReclaimsStaleLock(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	backdate(t, repo, 3*time.Minute)

	result, err := m.Acquire(ctx, holderB)
	require.NoError(t, err)
	assert.True(t, result.Acquired, "a stale lock should be reclaimable")

	stored, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hostB", stored.Hostname, "the stale token must be replaced")
	assert.Equal(t, 202, stored.PID)
}

// TestAcquireKeepsFreshLock ensures a lock just inside the timeout is not
// reclaimed.
func TestAcquireKeepsFreshLock(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	backdate(t, repo, models.LockStaleTimeout-5*time.Second)

	result, err := m.Acquire(ctx, holderB)
	require.NoError(t, err)
	assert.False(t, result.Acquired, "a lock within the timeout is still active")
}

// TestHeartbeatRenewsOnlyOwner checks the (hostname, pid) ownership match
// and that only the heartbeat timestamp moves.
func TestHeartbeatRenewsOnlyOwner(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	before, err := repo.GetAppLock(ctx)
	require.NoError(t, err)

	backdate(t, repo, time.Minute)

	renewed, err := m.Heartbeat(ctx, holderA)
	require.NoError(t, err)
	assert.True(t, renewed)

	after, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.True(t, after.LastHeartbeat.After(after.LockedAt), "last_heartbeat should advance")
	assert.True(t, after.LockedAt.Equal(before.LockedAt), "locked_at must never change on renewal")
}

// TestHeartbeatFromNonOwnerFails ensures a mismatched holder is refused
// without modifying the token.
func TestHeartbeatFromNonOwnerFails(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	before, err := repo.GetAppLock(ctx)
	require.NoError(t, err)

	renewed, err := m.Heartbeat(ctx, holderB)
	require.NoError(t, err)
	assert.False(t, renewed, "non-owner heartbeat must be refused")

	after, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.True(t, after.LastHeartbeat.Equal(before.LastHeartbeat), "token must be untouched")
	assert.Equal(t, "hostA", after.Hostname)
}

// TestReleaseByOwner verifies a matched release deletes the token.
func TestReleaseByOwner(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)

	released, err := m.Release(ctx, holderA)
	require.NoError(t, err)
	assert.True(t, released)

	_, err = repo.GetAppLock(ctx)
	assert.Error(t, err, "token should be gone after release")
}

// TestReleaseByNonOwnerIsNoOp ensures releasing someone else's lock fails
// without side effects.
func TestReleaseByNonOwnerIsNoOp(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)

	released, err := m.Release(ctx, holderB)
	require.NoError(t, err, "a mismatched release is a result, not an error")
	assert.False(t, released)

	stored, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hostA", stored.Hostname, "the owner's token must survive")
}

// TestActiveLock covers the three visibility cases: none, active, stale.
func TestActiveLock(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	active, err := m.ActiveLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "no token means no active lock")

	_, err = m.Acquire(ctx, holderA)
	require.NoError(t, err)

	active, err = m.ActiveLock(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "hostA", active.Hostname)

	backdate(t, repo, 3*time.Minute)
	active, err = m.ActiveLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "a stale token reads as no lock")
}

// TestConcurrentAcquireMutualExclusion runs two acquirers against an empty
// table: exactly one wins, the loser learns the winner's identity.
func TestConcurrentAcquireMutualExclusion(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*AcquireResult, 2)
	errs := make([]error, 2)
	for i, id := range []Identity{holderA, holderB} {
		wg.Add(1)
		go func(i int, id Identity) {
			defer wg.Done()
			results[i], errs[i] = m.Acquire(ctx, id)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	acquired := 0
	for i, r := range results {
		if r.Acquired {
			acquired++
		} else {
			require.NotNil(t, r.Holder, "loser %d should see the winner", i)
		}
	}
	assert.Equal(t, 1, acquired, "exactly one acquirer may win")
}
