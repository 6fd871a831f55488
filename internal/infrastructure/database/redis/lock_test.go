package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_ExclusiveUntilUnlocked(t *testing.T) {
	c, _ := newTestClient(t)
	locker := NewLocker(c, nil)
	ctx := context.Background()

	first, ok, err := locker.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))
	assert.ErrorIs(t, first.Unlock(ctx), ErrLockNotHeld)

	_, ok, err = locker.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExtendAndExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	locker := NewLocker(c, nil)
	ctx := context.Background()

	l, ok, err := locker.TryLock(ctx, "job-2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("fragmenter:lock:job-2"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrLockNotHeld)
}
