package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "a", N: 1}, time.Minute))
	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", N: 1}, got)

	ok, err := mc.Exists(ctx, "missing", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "k"))
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", payload{N: 1}, time.Second))
	now = now.Add(2 * time.Second)
	var got payload
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	mc.now = func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}

	require.NoError(t, mc.Set(ctx, "a", payload{N: 1}, 0))
	require.NoError(t, mc.Set(ctx, "b", payload{N: 2}, 0))
	var got payload
	require.NoError(t, mc.Get(ctx, "a", &got))
	require.NoError(t, mc.Set(ctx, "c", payload{N: 3}, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &got), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &got))
	assert.NoError(t, mc.Get(ctx, "c", &got))
}

func TestDeleteByPatternEscapesGlob(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	for _, k := range []string{"snapshot:preds|cols=a", "snapshot:preds|cols=b", "snapshot:other|cols=a", "snapshot:pre*"} {
		require.NoError(t, mc.Set(ctx, k, payload{}, 0))
	}

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern(GenerateKey("snapshot", "preds|"))))

	for k, want := range map[string]bool{
		"snapshot:preds|cols=a": false,
		"snapshot:preds|cols=b": false,
		"snapshot:other|cols=a": true,
		"snapshot:pre*":         true,
	} {
		ok, err := mc.Exists(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, want, ok, k)
	}
	assert.True(t, MatchPattern(BuildPattern("snapshot:pre*"), "snapshot:pre*x"))
	assert.False(t, MatchPattern(BuildPattern("snapshot:pre*"), "snapshot:preds"))
}
