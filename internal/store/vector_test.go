package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWAddSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}))
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	var mismatch DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestHNSWReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(2)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)

	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.Equal(t, 0, idx.Count())

	results, err = idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Empty(t, results, "lazily deleted vectors must not surface")
}

func TestHNSWCompactRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(2)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0},
		{0, 1},
		{0.7, 0.7},
	}))

	// Replacing and deleting orphans graph nodes without shrinking it.
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0.5, 0.5}}))
	require.NoError(t, idx.Delete(ctx, []string{"b"}))

	live, orphaned := idx.OrphanStats()
	assert.Equal(t, 2, live)
	assert.Equal(t, 2, orphaned)

	removed, err := idx.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	live, orphaned = idx.OrphanStats()
	assert.Equal(t, 2, live)
	assert.Equal(t, 0, orphaned)

	// Survivors still answer queries after the rebuild.
	results, err := idx.Search(ctx, []float32{0.7, 0.7}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []string{results[0].ChunkID, results[1].ChunkID}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	// A second compaction is a no-op.
	removed, err = idx.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestHNSWScoreIsRawCosine(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(2)
	require.NoError(t, err)
	defer idx.Close()

	// Unit vector at cosine 0.02 to the {1, 0} query axis.
	weak := []float32{0.02, float32(math.Sqrt(1 - 0.02*0.02))}
	require.NoError(t, idx.Add(ctx, []string{"weak", "anti"}, [][]float32{
		weak,
		{-1, 0},
	}))

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]*VectorResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	require.Contains(t, byID, "weak")
	require.Contains(t, byID, "anti")

	assert.InDelta(t, 0.02, float64(byID["weak"].Score), 0.005,
		"score is the raw cosine, not a compressed rescale")
	assert.InDelta(t, 0.98, float64(byID["weak"].Distance), 0.005)
	assert.Zero(t, byID["anti"].Score, "opposite vectors clamp at zero")
}

func TestHNSWEmptySearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(2)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	idx, err := NewHNSWIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	restored, err := NewHNSWIndex(2)
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.Count())

	results, err := restored.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))

	a := []float32{0.3, 0.4, 0.5}
	b := []float32{0.1, 0.9, 0.2}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	want := dot / (math.Sqrt(na) * math.Sqrt(nb))
	assert.InDelta(t, want, CosineSimilarity(a, b), 1e-9)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 0, 1e-8, 42}
	assert.Equal(t, v, decodeEmbedding(encodeEmbedding(v)))
	assert.Nil(t, decodeEmbedding(nil))
	assert.Nil(t, decodeEmbedding([]byte{1, 2, 3}))
}
