package services

import (
	"context"
	"testing"
	"time"

	"plainchat/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.presence.IsOnline(ctx, "bob"))

	require.NoError(t, f.presence.SetOnline(ctx, "bob"))
	assert.True(t, f.presence.IsOnline(ctx, "bob"))

	v, err := f.mr.Get("user-presence:bob")
	require.NoError(t, err)
	assert.Equal(t, "ON", v)

	// no expiry
	f.mr.FastForward(30 * 24 * time.Hour)
	assert.True(t, f.presence.IsOnline(ctx, "bob"))

	require.NoError(t, f.presence.SetOffline(ctx, "bob"))
	assert.False(t, f.presence.IsOnline(ctx, "bob"))
	require.NoError(t, f.presence.SetOffline(ctx, "bob"))
}

func TestPresence_LookupFailureIsOffline(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer c.Close()

	p := NewPresence(c)
	require.NoError(t, p.SetOnline(context.Background(), "bob"))
	mr.Close()

	assert.False(t, p.IsOnline(context.Background(), "bob"))
}
