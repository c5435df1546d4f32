package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cacheTestModel = "embed-test-model"

func newTestEmbeddingCache(t *testing.T) *EmbeddingCache {
	t.Helper()
	c, err := NewEmbeddingCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheGetBatchPreservesInputOrder(t *testing.T) {
	c := newTestEmbeddingCache(t)
	ctx := context.Background()

	// Given two cached texts
	require.NoError(t, c.SetBatch(ctx,
		[]string{"alpha", "beta"},
		[][]float32{{1, 1}, {2, 2}},
		cacheTestModel))

	// When fetching with a miss in the middle
	got, err := c.GetBatch(ctx, []string{"beta", "unknown", "alpha"}, cacheTestModel)
	require.NoError(t, err)

	// Then hits come back in input order and the miss is nil
	require.Len(t, got, 3)
	assert.Equal(t, []float32{2, 2}, got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, []float32{1, 1}, got[2])
}

func TestCacheIsModelScoped(t *testing.T) {
	c := newTestEmbeddingCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetBatch(ctx, []string{"text"}, [][]float32{{1}}, "model-a"))

	got, err := c.GetBatch(ctx, []string{"text"}, "model-b")
	require.NoError(t, err)
	assert.Nil(t, got[0])
}

func TestCacheSetBatchOverwrites(t *testing.T) {
	c := newTestEmbeddingCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetBatch(ctx, []string{"text"}, [][]float32{{1}}, cacheTestModel))
	require.NoError(t, c.SetBatch(ctx, []string{"text"}, [][]float32{{9}}, cacheTestModel))

	got, err := c.GetBatch(ctx, []string{"text"}, cacheTestModel)
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, got[0])
}

func TestCacheStatsAndClear(t *testing.T) {
	c := newTestEmbeddingCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetBatch(ctx, []string{"a", "b"}, [][]float32{{1}, {2}}, "model-a"))
	require.NoError(t, c.SetBatch(ctx, []string{"c"}, [][]float32{{3}}, "model-b"))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"model-a": 2, "model-b": 1}, stats)

	// Clearing one model leaves the other alone
	deleted, err := c.Clear(ctx, "model-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"model-b": 1}, stats)

	// Clearing without a model drops everything
	deleted, err = c.Clear(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestCachePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := NewEmbeddingCache(path)
	require.NoError(t, err)
	require.NoError(t, c.SetBatch(ctx, []string{"persistent"}, [][]float32{{7, 7}}, cacheTestModel))
	require.NoError(t, c.Close())

	reopened, err := NewEmbeddingCache(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetBatch(ctx, []string{"persistent"}, cacheTestModel)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 7}, got[0])
}
