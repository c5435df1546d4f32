package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/embed"
	"github.com/Aman-CERP/noterag/internal/store"
)

// stubEmbedder derives a deterministic 3-dimensional vector from the
// text so related content lands close together without any network.
type stubEmbedder struct {
	batchCalls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return stubVector(text), nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = stubVector(t)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int   { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }
func (s *stubEmbedder) Close() error      { return nil }

func stubVector(text string) []float32 {
	switch {
	case strings.Contains(text, "golang"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "cooking"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.APIKey = "test-key"
	cfg.Notes.Directory = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embedding.Dimension = 3
	return cfg
}

func writeNote(t *testing.T, cfg *config.Config, rel, content string) {
	t.Helper()
	path := filepath.Join(cfg.Notes.Directory, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := NewService(cfg, &stubEmbedder{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestBuildIndexEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeNote(t, cfg, "pages/golang.md",
		"---\ntitle: Go Notes\n---\nNotes about golang and goroutines. #golang\nSee [[Concurrency]].")
	writeNote(t, cfg, "pages/cooking.md",
		"Notes about cooking pasta. #cooking")

	svc := newTestService(t, cfg)
	ctx := context.Background()

	require.False(t, svc.IndexExists())
	require.NoError(t, svc.Build(ctx))
	assert.True(t, svc.IndexExists())

	// Documents and their relations are persisted
	doc, err := svc.Meta().DocumentByPath(ctx, "pages/golang.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Go Notes", doc.Title)

	tags, err := svc.Meta().TagsForDoc(ctx, doc.DocID)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, tags)

	links, err := svc.Meta().BacklinksForDoc(ctx, doc.DocID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Concurrency"}, links)

	// Vector search finds the matching note
	hits, err := svc.VectorSearch([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	chunk, err := svc.Meta().ChunkByID(ctx, hits[0].ChunkID)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, doc.DocID, chunk.DocID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, stats.TotalChunks, stats.VectorCount)
	assert.NotEmpty(t, stats.LastUpdate)
}

func TestBuildIndexChunkIDFormat(t *testing.T) {
	cfg := testConfig(t)
	writeNote(t, cfg, "note.md", "short golang note")

	svc := newTestService(t, cfg)
	ctx := context.Background()
	require.NoError(t, svc.Build(ctx))

	doc, err := svc.Meta().DocumentByPath(ctx, "note.md")
	require.NoError(t, err)
	chunks, err := svc.Meta().ChunksByDoc(ctx, doc.DocID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc.DocID+"_chunk_0", chunks[0].ChunkID)
}

func TestBuildIndexEmptyDirectory(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)

	require.NoError(t, svc.Build(context.Background()))
	assert.False(t, svc.IndexExists())
}

func TestRebuildReplacesPreviousIndex(t *testing.T) {
	cfg := testConfig(t)
	writeNote(t, cfg, "a.md", "golang note one")
	writeNote(t, cfg, "b.md", "cooking note two")

	svc := newTestService(t, cfg)
	ctx := context.Background()
	require.NoError(t, svc.Build(ctx))

	// Remove a note and rebuild
	require.NoError(t, os.Remove(filepath.Join(cfg.Notes.Directory, "b.md")))
	require.NoError(t, svc.Build(ctx))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, svc.VectorCount())

	gone, err := svc.Meta().DocumentByPath(ctx, "b.md")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestLoadPersistedIndex(t *testing.T) {
	cfg := testConfig(t)
	writeNote(t, cfg, "a.md", "golang note")

	built := newTestService(t, cfg)
	require.NoError(t, built.Build(context.Background()))
	require.NoError(t, built.Close())

	reopened, err := NewService(cfg, &stubEmbedder{}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Load(context.Background()))
	assert.Equal(t, 1, reopened.VectorCount())
}

func TestLoadFailsWithoutIndex(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	assert.Error(t, svc.Load(context.Background()))
}

func TestRebuildServesEmbeddingsFromCache(t *testing.T) {
	// Given an embeddings endpoint that counts every request
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, item{Index: i, Embedding: stubVector(text)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Embedding.APIBase = srv.URL
	writeNote(t, cfg, "a.md", "golang note about goroutines")
	writeNote(t, cfg, "b.md", "cooking note about pasta")

	require.NoError(t, cfg.EnsureDataDir())
	cache, err := store.NewEmbeddingCache(cfg.CacheDBPath())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	embedder := embed.NewArkEmbedder(cfg.Embedding, cfg.APIKey, cache, nil)
	t.Cleanup(func() { embedder.Close() })

	svc, err := NewService(cfg, embedder, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	// When building twice over an unchanged corpus
	ctx := context.Background()
	require.NoError(t, svc.Build(ctx))
	cold := requests.Load()
	require.Greater(t, cold, int32(0))

	require.NoError(t, svc.Build(ctx))

	// Then the rebuild hits the warm cache and never calls the API
	assert.Equal(t, cold, requests.Load())

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
}
