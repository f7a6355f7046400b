package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
)

func TestMemoryAdapter_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryAdapter()

	_, err := cache.Get(ctx, "missing")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	value, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	require.NoError(t, cache.Delete(ctx, "a", "b", "never-set"))
	exists, err := cache.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryAdapter_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryAdapter()

	ok, err := cache.SetIfAbsent(ctx, "guard", []byte("first"), 60)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetIfAbsent(ctx, "guard", []byte("second"), 60)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := cache.Get(ctx, "guard")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), value)
}

func TestMemoryAdapter_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryAdapter()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 10))

	now = now.Add(5 * time.Second)
	_, err := cache.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	_, err = cache.Get(ctx, "k")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	ok, err := cache.SetIfAbsent(ctx, "k", []byte("again"), 10)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryAdapter_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryAdapter()

	input := []byte("abc")
	require.NoError(t, cache.Set(ctx, "k", input, 0))
	input[0] = 'z'

	value, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), value)
}
