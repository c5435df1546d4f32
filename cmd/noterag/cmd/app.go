package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/embed"
	"github.com/Aman-CERP/noterag/internal/index"
	"github.com/Aman-CERP/noterag/internal/llm"
	"github.com/Aman-CERP/noterag/internal/search"
	"github.com/Aman-CERP/noterag/internal/store"
	"github.com/Aman-CERP/noterag/internal/websearch"
)

// services bundles the wired application components.
type services struct {
	cfg       *config.Config
	cache     *store.EmbeddingCache
	embedder  embed.Embedder
	llm       *llm.Client
	index     *index.Service
	retriever *search.Retriever
	answerer  *search.Answerer
}

// buildServices wires the full pipeline from config. Components are
// closed in reverse order by Close.
func buildServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cache, err := store.NewEmbeddingCache(cfg.CacheDBPath())
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	embedder := embed.NewCachedEmbedder(
		embed.NewArkEmbedder(cfg.Embedding, cfg.APIKey, cache, logger),
		embed.DefaultQueryCacheSize,
	)

	svc, err := index.NewService(cfg, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		_ = cache.Close()
		return nil, err
	}

	llmClient := llm.NewClient(cfg.LLM, cfg.APIKey, logger)
	retriever := search.NewRetriever(svc, embedder, websearch.NewClient(logger), cfg.Search, logger)
	answerer := search.NewAnswerer(llmClient, logger)

	return &services{
		cfg:       cfg,
		cache:     cache,
		embedder:  embedder,
		llm:       llmClient,
		index:     svc,
		retriever: retriever,
		answerer:  answerer,
	}, nil
}

func (s *services) Close() {
	_ = s.llm.Close()
	_ = s.index.Close()
	_ = s.embedder.Close()
	_ = s.cache.Close()
}
