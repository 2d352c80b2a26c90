package mailing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimiterNilClientAllows(t *testing.T) {
	l := NewAccountRateLimiter(nil)
	acct := testAccount("alpha")
	acct.MaxPerHour = 1

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(context.Background(), &acct)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRateLimiterHourlyCap(t *testing.T) {
	l := NewAccountRateLimiter(setupTestRedis(t))
	acct := testAccount("alpha")
	acct.ID = "acct-1"
	acct.MaxPerHour = 2

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, &acct)
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, &acct)
	require.NoError(t, err)
	assert.False(t, ok)

	// Denials do not consume the window.
	hour, _, err := l.Usage(ctx, &acct)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hour)
}

func TestRateLimiterDailyCap(t *testing.T) {
	l := NewAccountRateLimiter(setupTestRedis(t))
	acct := testAccount("alpha")
	acct.ID = "acct-1"
	acct.MaxPerDay = 1

	ctx := context.Background()
	ok, err := l.Allow(ctx, &acct)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, &acct)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiterDailyDenialReturnsHourlyUnit(t *testing.T) {
	l := NewAccountRateLimiter(setupTestRedis(t))
	acct := testAccount("alpha")
	acct.ID = "acct-1"
	acct.MaxPerHour = 10
	acct.MaxPerDay = 1

	ctx := context.Background()
	ok, err := l.Allow(ctx, &acct)
	require.NoError(t, err)
	require.True(t, ok)

	// Repeated denied attempts must not chew through the hour budget.
	for i := 0; i < 3; i++ {
		ok, err = l.Allow(ctx, &acct)
		require.NoError(t, err)
		require.False(t, ok)
	}

	hour, day, err := l.Usage(ctx, &acct)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hour)
	assert.Equal(t, int64(1), day)
}

func TestRateLimiterUncappedAccountSkipsRedis(t *testing.T) {
	client := setupTestRedis(t)
	l := NewAccountRateLimiter(client)
	acct := testAccount("alpha")
	acct.ID = "acct-1"

	ok, err := l.Allow(context.Background(), &acct)
	require.NoError(t, err)
	assert.True(t, ok)

	hour, day, err := l.Usage(context.Background(), &acct)
	require.NoError(t, err)
	assert.Zero(t, hour)
	assert.Zero(t, day)
}

func TestRateLimiterIsolatesAccounts(t *testing.T) {
	l := NewAccountRateLimiter(setupTestRedis(t))
	ctx := context.Background()

	a := testAccount("alpha")
	a.ID = "acct-a"
	a.MaxPerHour = 1
	b := testAccount("beta")
	b.ID = "acct-b"
	b.MaxPerHour = 1

	ok, err := l.Allow(ctx, &a)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, &a)
	require.NoError(t, err)
	require.False(t, ok)

	// Account b still has its own window.
	ok, err = l.Allow(ctx, &b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWindowRollover(t *testing.T) {
	l := NewAccountRateLimiter(setupTestRedis(t))
	acct := testAccount("alpha")
	acct.ID = "acct-1"
	acct.MaxPerHour = 1

	base := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	ok, err := l.Allow(ctx, &acct)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, &acct)
	require.NoError(t, err)
	require.False(t, ok)

	// The next hour opens a fresh window.
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	ok, err = l.Allow(ctx, &acct)
	require.NoError(t, err)
	assert.True(t, ok)
}
