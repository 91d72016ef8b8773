package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_RoundTripAndTTL(t *testing.T) {
	c := NewMemoryCache(100)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	in := snapshot{ID: 3, Name: "carol", Perms: []string{"a"}}
	require.NoError(t, c.Set(ctx, UserKey(3), in, time.Minute))

	var got snapshot
	found, err := c.Get(ctx, UserKey(3), &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, got)

	now = now.Add(time.Minute)
	found, err = c.Get(ctx, UserKey(3), &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ReadersDoNotShareState(t *testing.T) {
	c := NewMemoryCache(10)
	ctx := context.Background()

	in := snapshot{ID: 1, Perms: []string{"a"}}
	require.NoError(t, c.Set(ctx, "k:1", in, 0))
	in.Perms[0] = "mutated"

	var got snapshot
	found, err := c.Get(ctx, "k:1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"a"}, got.Perms)
}

func TestMemoryCache_DeleteAndInvalidKey(t *testing.T) {
	c := NewMemoryCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k:1", 1, 0))
	require.NoError(t, c.Delete(ctx, "k:1", "k:missing"))

	var v int
	found, err := c.Get(ctx, "k:1", &v)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = c.Get(ctx, "", &v)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrInvalidKey)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user:42", UserKey(42))
	assert.Equal(t, "CacheModel:Menu:7", EntityKey("Menu", 7))
	assert.Equal(t, "user", KeyFamily("user:42"))
	assert.Equal(t, "CacheModel:MenuTree", KeyFamily("CacheModel:MenuTree:full"))
	assert.Equal(t, "plain", KeyFamily("plain"))
}
