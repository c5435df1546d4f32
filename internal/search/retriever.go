package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/embed"
	nrerrors "github.com/Aman-CERP/noterag/internal/errors"
	"github.com/Aman-CERP/noterag/internal/store"
	"github.com/Aman-CERP/noterag/internal/websearch"
)

// IndexSource is the slice of the index service retrieval needs.
type IndexSource interface {
	VectorSearch(query []float32, k int) ([]store.VectorHit, error)
	Meta() *store.MetadataStore
}

// WebSearcher searches the web. Failures surface as empty results.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) []websearch.Result
}

// Retriever fuses local vector retrieval with web search.
type Retriever struct {
	index    IndexSource
	embedder embed.Embedder
	web      WebSearcher
	cfg      config.SearchConfig
	logger   *slog.Logger

	// now is swapped in tests to pin time decay.
	now func() time.Time
}

// NewRetriever wires a retriever. web may be nil to disable web search.
func NewRetriever(index IndexSource, embedder embed.Embedder, web WebSearcher, cfg config.SearchConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:    index,
		embedder: embedder,
		web:      web,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// HybridSearch splits a result budget of twenty between local notes
// and the web by localRatio, runs both retrievals concurrently, and
// returns the merged list sorted by score. Pass a negative localRatio
// to use the configured default.
func (r *Retriever) HybridSearch(ctx context.Context, query string, localRatio float64) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nrerrors.New(nrerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if localRatio < 0 {
		localRatio = r.cfg.LocalRatio
	}
	localK, webK := r.Budget(localRatio)

	r.logger.Info("hybrid_search_started",
		slog.Float64("local_ratio", localRatio),
		slog.Int("local_k", localK),
		slog.Int("web_k", webK))

	var localResults, webResults []Result

	g, gctx := errgroup.WithContext(ctx)
	if localK > 0 {
		g.Go(func() error {
			var err error
			localResults, err = r.LocalSearch(gctx, query, localK)
			return err
		})
	}
	if webK > 0 && r.web != nil {
		g.Go(func() error {
			webResults = r.webSearch(gctx, query, webK)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nrerrors.Wrap(nrerrors.ErrCodeSearchFailed, err)
	}

	merged := append(localResults, webResults...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	r.logger.Info("hybrid_search_completed",
		slog.Int("local", len(localResults)),
		slog.Int("web", len(webResults)))
	return merged, nil
}

// Budget splits the result budget of twenty between local notes and
// the web. Pass a negative localRatio to use the configured default.
func (r *Retriever) Budget(localRatio float64) (localK, webK int) {
	if localRatio < 0 {
		localRatio = r.cfg.LocalRatio
	}
	return int(totalResultBudget * localRatio), int(totalResultBudget * (1 - localRatio))
}

// WebSearch returns web results scored at the fixed mid-range weight.
// A nil web client yields no results.
func (r *Retriever) WebSearch(ctx context.Context, query string, topK int) []Result {
	if r.web == nil || topK <= 0 {
		return nil
	}
	return r.webSearch(ctx, query, topK)
}

// LocalSearch embeds the query, over-fetches three times the budget
// from the vector index, filters by the similarity threshold, expands
// each hit with neighbouring chunks, and scores with time decay and
// title boost.
func (r *Retriever) LocalSearch(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.VectorSearch(queryVector, topK*3)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		r.logger.Warn("local_search_no_candidates")
		return nil, nil
	}

	now := r.now()
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		// Threshold applies to the raw similarity, before boosts.
		similarity := float64(hit.Similarity)
		if similarity < r.cfg.SimilarityThreshold {
			continue
		}

		data, err := r.chunkWithContext(ctx, hit.ChunkID)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}

		timeWeight := timeDecay(data.modifiedAt, now, r.cfg.TimeDecay)
		boost := titleBoost(query, data.title)
		createdAt := data.createdAt

		results = append(results, Result{
			Content:   data.extendedContent,
			FilePath:  data.filePath,
			Title:     data.title,
			Score:     similarity * timeWeight * boost,
			Source:    SourceLocal,
			ChunkID:   hit.ChunkID,
			Tags:      data.tags,
			Backlinks: data.backlinks,
			CreatedAt: &createdAt,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	r.logger.Info("local_search_completed",
		slog.Int("candidates", len(hits)),
		slog.Int("results", len(results)),
		slog.Float64("threshold", r.cfg.SimilarityThreshold))
	return results, nil
}

// webSearch maps web hits into results with a fixed mid-range score.
func (r *Retriever) webSearch(ctx context.Context, query string, topK int) []Result {
	items := r.web.Search(ctx, query, topK)

	results := make([]Result, 0, len(items))
	for _, item := range items {
		content := item.Content
		if content == "" {
			content = item.Snippet
		}
		results = append(results, Result{
			Content: content,
			Title:   item.Title,
			Score:   webResultScore,
			Source:  SourceWeb,
			URL:     item.URL,
		})
	}
	return results
}

// chunkData carries one hit plus its document metadata and the
// neighbour-extended content.
type chunkData struct {
	extendedContent string
	filePath        string
	title           string
	tags            []string
	backlinks       []string
	createdAt       time.Time
	modifiedAt      time.Time
}

// chunkWithContext loads a chunk and prepends up to ContextBefore
// preceding chunks and appends up to ContextAfter following chunks
// from the same document. Missing predecessors are skipped; the first
// missing successor stops the extension.
func (r *Retriever) chunkWithContext(ctx context.Context, chunkID string) (*chunkData, error) {
	meta := r.index.Meta()

	chunk, err := meta.ChunkByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, nil
	}

	doc, err := meta.DocumentByID(ctx, chunk.DocID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	tags, err := meta.TagsForDoc(ctx, chunk.DocID)
	if err != nil {
		return nil, err
	}
	backlinks, err := meta.BacklinksForDoc(ctx, chunk.DocID)
	if err != nil {
		return nil, err
	}

	var parts []string
	for i := chunk.ChunkIndex - r.cfg.ContextBefore; i < chunk.ChunkIndex; i++ {
		if i < 0 {
			continue
		}
		neighbour, err := meta.ChunkByID(ctx, neighbourID(chunk.DocID, i))
		if err != nil {
			return nil, err
		}
		if neighbour != nil {
			parts = append(parts, neighbour.Content)
		}
	}

	parts = append(parts, chunk.Content)

	for i := chunk.ChunkIndex + 1; i <= chunk.ChunkIndex+r.cfg.ContextAfter; i++ {
		neighbour, err := meta.ChunkByID(ctx, neighbourID(chunk.DocID, i))
		if err != nil {
			return nil, err
		}
		if neighbour == nil {
			break
		}
		parts = append(parts, neighbour.Content)
	}

	return &chunkData{
		extendedContent: strings.Join(parts, "\n\n"),
		filePath:        doc.FilePath,
		title:           doc.Title,
		tags:            tags,
		backlinks:       backlinks,
		createdAt:       doc.CreatedAt,
		modifiedAt:      doc.ModifiedAt,
	}, nil
}

func neighbourID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}
