package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/store"
	"github.com/Aman-CERP/noterag/internal/websearch"
)

// fakeIndex serves canned vector hits over a real metadata store.
type fakeIndex struct {
	meta *store.MetadataStore
	hits []store.VectorHit
}

func (f *fakeIndex) VectorSearch(query []float32, k int) ([]store.VectorHit, error) {
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) Meta() *store.MetadataStore { return f.meta }

type fakeQueryEmbedder struct{}

func (fakeQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeQueryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (fakeQueryEmbedder) Dimensions() int   { return 3 }
func (fakeQueryEmbedder) ModelName() string { return "fake" }
func (fakeQueryEmbedder) Close() error      { return nil }

type fakeWeb struct {
	calls   int
	results []websearch.Result
}

func (f *fakeWeb) Search(ctx context.Context, query string, maxResults int) []websearch.Result {
	f.calls++
	if len(f.results) > maxResults {
		return f.results[:maxResults]
	}
	return f.results
}

func searchTestConfig() config.SearchConfig {
	return config.SearchConfig{
		LocalRatio: 0.8,
		TimeDecay: config.TimeDecayConfig{
			RecentMonths: 3, RecentBoost: 1.5, OldYears: 1, OldPenalty: 0.8,
		},
		TopKLocal:           20,
		TopKWeb:             5,
		SimilarityThreshold: 0.3,
		ContextBefore:       3,
		ContextAfter:        2,
	}
}

// seedDocument stores a document with n sequential chunks.
func seedDocument(t *testing.T, meta *store.MetadataStore, docID, title string, modified time.Time, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, meta.UpsertDocument(ctx, &store.Document{
		DocID:      docID,
		FilePath:   "pages/" + docID + ".md",
		Title:      title,
		CreatedAt:  modified,
		ModifiedAt: modified,
	}))
	chunks := make([]*store.Chunk, n)
	for i := range chunks {
		chunks[i] = &store.Chunk{
			ChunkID:    fmt.Sprintf("%s_chunk_%d", docID, i),
			DocID:      docID,
			Content:    fmt.Sprintf("chunk %d of %s", i, docID),
			ChunkIndex: i,
		}
	}
	require.NoError(t, meta.ReplaceChunks(ctx, docID, chunks))
}

func newTestRetriever(t *testing.T, idx *fakeIndex, web WebSearcher) *Retriever {
	t.Helper()
	r := NewRetriever(idx, fakeQueryEmbedder{}, web, searchTestConfig(), nil)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func newTestMeta(t *testing.T) *store.MetadataStore {
	t.Helper()
	meta, err := store.NewMetadataStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return meta
}

func TestLocalSearchExpandsContextAtDocumentStart(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 5)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{{ChunkID: "d1_chunk_0", Similarity: 0.9}}}
	r := newTestRetriever(t, idx, nil)

	results, err := r.LocalSearch(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Hit on the first chunk: no predecessors, two successors
	assert.Equal(t,
		"chunk 0 of d1\n\nchunk 1 of d1\n\nchunk 2 of d1",
		results[0].Content)
}

func TestLocalSearchExpandsContextBothSides(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 8)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{{ChunkID: "d1_chunk_4", Similarity: 0.9}}}
	r := newTestRetriever(t, idx, nil)

	results, err := r.LocalSearch(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Three before, the hit, two after
	assert.Equal(t,
		"chunk 1 of d1\n\nchunk 2 of d1\n\nchunk 3 of d1\n\nchunk 4 of d1\n\nchunk 5 of d1\n\nchunk 6 of d1",
		results[0].Content)
}

func TestLocalSearchFiltersBelowThreshold(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 1)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{
		{ChunkID: "d1_chunk_0", Similarity: 0.29},
	}}
	r := newTestRetriever(t, idx, nil)

	results, err := r.LocalSearch(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLocalSearchScoresWithDecayAndBoost(t *testing.T) {
	meta := newTestMeta(t)
	// Modified 7 days before "now": recent boost 1.5 applies. Title
	// covers half of the two query keywords: boost 1.5.
	seedDocument(t, meta, "d1", "Logseq tips", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 1)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{{ChunkID: "d1_chunk_0", Similarity: 0.8}}}
	r := newTestRetriever(t, idx, nil)

	results, err := r.LocalSearch(context.Background(), "Logseq usage", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.InDelta(t, 0.8*1.5*1.5, results[0].Score, 1e-6)
	assert.Equal(t, SourceLocal, results[0].Source)
	assert.Equal(t, "pages/d1.md", results[0].FilePath)
}

func TestLocalSearchSkipsDanglingChunkIDs(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 1)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{
		{ChunkID: "gone_chunk_0", Similarity: 0.9},
		{ChunkID: "d1_chunk_0", Similarity: 0.8},
	}}
	r := newTestRetriever(t, idx, nil)

	results, err := r.LocalSearch(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1_chunk_0", results[0].ChunkID)
}

func TestHybridSearchMergesAndSorts(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{{ChunkID: "d1_chunk_0", Similarity: 0.4}}}
	web := &fakeWeb{results: []websearch.Result{
		{Title: "Web Hit", URL: "https://example.com", Content: "web content"},
	}}
	r := newTestRetriever(t, idx, web)

	results, err := r.HybridSearch(context.Background(), "query", 0.8)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Old note: 0.4 * 0.8 penalty = 0.32 < web 0.5
	assert.Equal(t, SourceWeb, results[0].Source)
	assert.Equal(t, 0.5, results[0].Score)
	assert.Equal(t, SourceLocal, results[1].Source)
	assert.InDelta(t, 0.32, results[1].Score, 1e-6)
	assert.Equal(t, 1, web.calls)
}

func TestHybridSearchLocalOnly(t *testing.T) {
	meta := newTestMeta(t)
	seedDocument(t, meta, "d1", "Doc One", time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), 1)

	idx := &fakeIndex{meta: meta, hits: []store.VectorHit{{ChunkID: "d1_chunk_0", Similarity: 0.9}}}
	web := &fakeWeb{}
	r := newTestRetriever(t, idx, web)

	// local_ratio 1.0 means the web budget is zero
	results, err := r.HybridSearch(context.Background(), "query", 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, web.calls)
}

func TestHybridSearchRejectsEmptyQuery(t *testing.T) {
	r := newTestRetriever(t, &fakeIndex{meta: newTestMeta(t)}, nil)
	_, err := r.HybridSearch(context.Background(), "   ", 0.8)
	assert.Error(t, err)
}

func TestHybridSearchUsesConfiguredRatio(t *testing.T) {
	meta := newTestMeta(t)
	idx := &fakeIndex{meta: meta}
	web := &fakeWeb{}
	r := newTestRetriever(t, idx, web)

	// Negative ratio falls back to the configured 0.8: web budget 4
	_, err := r.HybridSearch(context.Background(), "query", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, web.calls)
}
