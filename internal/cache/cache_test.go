package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Title string `json:"title"`
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "k", entry{Title: "Lisbon"}, time.Minute))
	got, ok := GetJSON[entry](ctx, c, "k")
	require.True(t, ok)
	require.Equal(t, "Lisbon", got.Title)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedis(ctx, "redis://"+mr.Addr()+"/0", "trip:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, ok, err := c.Get(ctx, "meta")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "meta", entry{Title: "Kyoto"}, time.Hour))
	require.True(t, mr.Exists("trip:meta"))
	got, ok := GetJSON[entry](ctx, c, "meta")
	require.True(t, ok)
	require.Equal(t, "Kyoto", got.Title)

	mr.FastForward(2 * time.Hour)
	_, ok = GetJSON[entry](ctx, c, "meta")
	require.False(t, ok)
}

func TestNewRedis_Errors(t *testing.T) {
	_, err := NewRedis(context.Background(), "://bad", "")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedis(context.Background(), "redis://"+addr, "")
	require.ErrorContains(t, err, "redis ping failed")
}

func TestGetJSON_NilAndCorrupt(t *testing.T) {
	ctx := context.Background()
	_, ok := GetJSON[entry](ctx, nil, "k")
	require.False(t, ok)
	require.NoError(t, SetJSON(ctx, nil, "k", entry{}, time.Minute))

	c := NewMemory(time.Minute)
	require.NoError(t, c.Set(ctx, "k", []byte("{not json"), time.Minute))
	_, ok = GetJSON[entry](ctx, c, "k")
	require.False(t, ok)
}
