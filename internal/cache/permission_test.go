package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPermissionCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c := &memoryPermissionCache{ttl: time.Minute, now: func() time.Time { return now }}

	_, ok, err := c.Get(ctx, "dse")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "dse", []string{"requests.read", "requests.review.dse"}))
	codes, ok, err := c.Get(ctx, "dse")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"requests.read", "requests.review.dse"}, codes)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "dse")
	assert.False(t, ok, "entry must expire after the ttl")
}

func TestMemoryPermissionCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryPermissionCache(time.Hour)

	require.NoError(t, c.Set(ctx, "dse", []string{"a"}))
	require.NoError(t, c.Set(ctx, "padiri", []string{"b"}))

	require.NoError(t, c.Invalidate(ctx, "dse"))
	_, ok, _ := c.Get(ctx, "dse")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "padiri")
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, ""))
	_, ok, _ = c.Get(ctx, "padiri")
	assert.False(t, ok)
}
