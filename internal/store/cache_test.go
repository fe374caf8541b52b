package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInMemoryCache builds a cache in fallback mode without dialing Redis.
func newInMemoryCache() *Cache {
	return &Cache{mem: newMemStore()}
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := newInMemoryCache()

	type payload struct {
		Debt string `json:"debt"`
	}

	require.NoError(t, c.SetGlobalDebt(ctx, payload{Debt: "600"}, time.Minute))

	var got payload
	require.NoError(t, c.GetGlobalDebt(ctx, &got))
	assert.Equal(t, "600", got.Debt)
}

func TestCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := newInMemoryCache()

	var dest map[string]string
	assert.ErrorIs(t, c.Get(ctx, "syn:absent", &dest), ErrCacheMiss)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newInMemoryCache()

	require.NoError(t, c.Set(ctx, "syn:short", "v", time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	var dest string
	assert.ErrorIs(t, c.Get(ctx, "syn:short", &dest), ErrCacheMiss)
}

func TestInvalidateUserSummary(t *testing.T) {
	ctx := context.Background()
	c := newInMemoryCache()

	require.NoError(t, c.SetUserSummary(ctx, "alice", "summary", time.Minute))
	require.NoError(t, c.SetGlobalDebt(ctx, "600", time.Minute))

	require.NoError(t, c.InvalidateUserSummary(ctx, "alice"))

	var dest string
	assert.ErrorIs(t, c.GetUserSummary(ctx, "alice", &dest), ErrCacheMiss)
	assert.ErrorIs(t, c.GetGlobalDebt(ctx, &dest), ErrCacheMiss)
}

func TestInMemoryModeHealthy(t *testing.T) {
	c := newInMemoryCache()
	assert.True(t, c.IsInMemoryMode())
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
