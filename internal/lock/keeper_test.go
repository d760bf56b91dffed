package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKeeperRenewsLock runs the renewal loop with a short interval and
// checks the heartbeat timestamp advances.
func TestKeeperRenewsLock(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	before, err := repo.GetAppLock(ctx)
	require.NoError(t, err)

	keeper := m.NewKeeper(holderA, nil)
	keeper.interval = 20 * time.Millisecond
	keeper.Start()
	time.Sleep(100 * time.Millisecond)
	keeper.Stop()

	after, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.True(t, after.LastHeartbeat.After(before.LastHeartbeat),
		"the keeper should refresh the heartbeat")
	assert.True(t, after.LockedAt.Equal(before.LockedAt))
}

// TestKeeperReportsLostLock ensures the loop ends and the callback fires
// when the lock was reclaimed by someone else.
func TestKeeperReportsLostLock(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)

	// Someone else reclaims the lock out from under holder A.
	require.NoError(t, repo.ClearAppLock(ctx))
	result, err := m.Acquire(ctx, holderB)
	require.NoError(t, err)
	require.True(t, result.Acquired)

	lost := make(chan struct{})
	keeper := m.NewKeeper(holderA, func() { close(lost) })
	keeper.interval = 20 * time.Millisecond
	keeper.Start()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("keeper never noticed the lost lock")
	}
	keeper.Stop()

	stored, err := repo.GetAppLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hostB", stored.Hostname, "holder B's token must be untouched")
}

// TestLateRenewalAfterRelease covers the stray-heartbeat case: once the
// holder released, a late renewal is refused and resurrects nothing.
func TestLateRenewalAfterRelease(t *testing.T) {
	m, repo := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, holderA)
	require.NoError(t, err)
	released, err := m.Release(ctx, holderA)
	require.NoError(t, err)
	require.True(t, released)

	renewed, err := m.Heartbeat(ctx, holderA)
	require.NoError(t, err)
	assert.False(t, renewed, "a late heartbeat must not recreate the lock")

	_, err = repo.GetAppLock(ctx)
	assert.Error(t, err, "no lock row should exist")
}
