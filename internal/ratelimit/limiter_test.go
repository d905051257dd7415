package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSlidingWindowAllow(t *testing.T) {
	client, mr := newRedis(t)
	window := 2 * time.Second
	limiter := &SlidingWindow{Client: client, Prefix: "test:", Window: window, Max: 2}
	ctx := context.Background()

	for i := range 2 {
		res, err := limiter.Allow(ctx, "key")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i)
		require.Equal(t, 2-(i+1), res.Remaining)
	}

	res, err := limiter.Allow(ctx, "key")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)

	other, err := limiter.Allow(ctx, "other")
	require.NoError(t, err)
	require.True(t, other.Allowed)

	mr.FastForward(window)

	res, err = limiter.Allow(ctx, "key")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestSlidingWindowDisabled(t *testing.T) {
	res, err := (&SlidingWindow{Window: time.Second, Max: 5}).Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 5, res.Remaining)
}

func TestFixedWindowAllow(t *testing.T) {
	limiter := NewFixedWindow(memory.NewStore(), time.Minute, 2)
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "shop:1.2.3.4")
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, 2, first.Limit)
	require.Equal(t, 1, first.Remaining)

	_, err = limiter.Allow(ctx, "shop:1.2.3.4")
	require.NoError(t, err)

	third, err := limiter.Allow(ctx, "shop:1.2.3.4")
	require.NoError(t, err)
	require.False(t, third.Allowed)
	require.Equal(t, 0, third.Remaining)
	require.True(t, third.ResetAt.After(time.Now()))
}

func TestNewSelectsStrategy(t *testing.T) {
	client, _ := newRedis(t)

	l, err := New("sliding", client, "rl:", time.Second, 1)
	require.NoError(t, err)
	require.IsType(t, &SlidingWindow{}, l)

	l, err = New("unknown", client, "rl:", time.Second, 1)
	require.NoError(t, err)
	require.IsType(t, &SlidingWindow{}, l)

	l, err = New(" FIXED ", client, "rl:", time.Second, 1)
	require.NoError(t, err)
	require.IsType(t, &FixedWindow{}, l)
}
