package eligibility

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetPut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	key := CacheKey("m", "seg")
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, "m", "seg", "1 seg"))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1 seg", got)

	require.NoError(t, c.Put(ctx, key, "m", "seg", "1 seg v2"))
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, CacheKey("m", "a"), "m", "a", "1 a"))
	require.NoError(t, c.Close())

	c, err = OpenCache(path)
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Get(ctx, CacheKey("m", "a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1 a", got)
}

func TestCacheKey_DependsOnModelAndSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CacheKey("m", "s"), CacheKey("m", "s"))
	assert.NotEqual(t, CacheKey("m", "s"), CacheKey("n", "s"))
	assert.NotEqual(t, CacheKey("m", "s"), CacheKey("m", "t"))
	assert.NotEqual(t, CacheKey("ab", "c"), CacheKey("a", "bc"))
}

func TestCachingStructurer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := OpenCache(":memory:")
	require.NoError(t, err)
	defer c.Close()

	var calls int32
	next := StructurerFunc(func(_ context.Context, segment string) (string, error) {
		atomic.AddInt32(&calls, 1)
		if segment == "bad" {
			return "", errors.New("model unavailable")
		}
		return "1 " + segment, nil
	})
	s := CachingStructurer{Next: next, Cache: c, Model: "m"}

	first := ProcessRow(ctx, 0, "crit", s)
	require.NoError(t, first.Err)
	assert.Equal(t, "1 crit", first.Output)
	assert.False(t, first.Cached)

	second := ProcessRow(ctx, 1, "crit", s)
	require.NoError(t, second.Err)
	assert.Equal(t, "1 crit", second.Output)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = s.Structure(ctx, "bad")
	require.Error(t, err)
	_, err = s.Structure(ctx, "bad")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "failures are not cached")
}
