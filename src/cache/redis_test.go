package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, "setupingest:")

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, m.Exists("setupingest:k"))
	assert.Equal(t, time.Minute, m.TTL("setupingest:k"))

	b, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), b)

	m.FastForward(2 * time.Minute)
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, m.Exists("setupingest:k"))
}

func TestConfirmedSetOnRedis(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	ctx := context.Background()
	set := NewConfirmedSet(NewRedisStore(client, "setupingest:"), time.Hour)

	require.NoError(t, set.Confirm(ctx, "m-1"))
	seen, err := set.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)

	m.FastForward(time.Hour + time.Second)
	seen, err = set.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisStoreUnavailable(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	defer client.Close()
	m.Close()

	_, _, err := NewRedisStore(client, "setupingest:").Get(context.Background(), "k")
	assert.Error(t, err)
}
