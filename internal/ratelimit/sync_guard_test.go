package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncGuardWithoutRedisSkipsLocking(t *testing.T) {
	guard := NewSyncGuard(config.Config{}, nil, zap.NewNop())
	assert.False(t, guard.Enabled())

	token, ok, err := guard.TryLockAccount(context.Background(), "Frutas Garcia SL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, guard.ReleaseAccount(context.Background(), "Frutas Garcia SL", token))
}

func TestSyncGuardWithoutRedisThrottlesExportsLocally(t *testing.T) {
	guard := NewSyncGuard(config.Config{
		Dashboard: config.DashboardConfig{ExportRate: 0.5, ExportBurst: 2},
	}, nil, zap.NewNop())
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	guard.local.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := guard.AllowExport(ctx, "Frutas Garcia SL")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "export %d", i)
	}

	res, err := guard.AllowExport(ctx, "Frutas Garcia SL")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2*time.Second, res.RetryAfter)

	other, err := guard.AllowExport(ctx, "Hermanos Pastor")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(2 * time.Second)
	res, err = guard.AllowExport(ctx, "Frutas Garcia SL")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilSyncGuardAllowsExports(t *testing.T) {
	var guard *SyncGuard
	res, err := guard.AllowExport(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAccountLockKeyIsSlugged(t *testing.T) {
	assert.Equal(t, "sync:lock:account:frutas-garcia-sl", accountLockKey(" Frutas García SL "))
	assert.Equal(t, "sync:lock:account:unknown", accountLockKey("  "))
}

func TestUnconfiguredLockerAndLimiter(t *testing.T) {
	ctx := context.Background()

	var locker *Locker
	_, ok, err := locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.False(t, ok)
	_, err = locker.Extend(ctx, "k", "t", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(ctx, "k", "t"))

	var limiter *Limiter
	res, err := limiter.Allow(ctx, "k", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)
	assert.False(t, res.Allowed)
}

func TestReplyFloat(t *testing.T) {
	assert.Equal(t, 1.5, replyFloat("1.5"))
	assert.Equal(t, 3.0, replyFloat(int64(3)))
	assert.Equal(t, 0.0, replyFloat(nil))
}
