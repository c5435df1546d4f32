package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/embed"
	nrerrors "github.com/Aman-CERP/noterag/internal/errors"
	"github.com/Aman-CERP/noterag/internal/markdown"
	"github.com/Aman-CERP/noterag/internal/store"
)

// IndexStats describes the current index.
type IndexStats struct {
	TotalDocuments int     `json:"total_documents"`
	TotalChunks    int     `json:"total_chunks"`
	TotalTags      int     `json:"total_tags"`
	TotalFiles     int     `json:"total_files"`
	VectorCount    int     `json:"vector_count"`
	LastUpdate     string  `json:"last_update"`
	IndexSizeMB    float64 `json:"index_size_mb"`
}

// parsedDocument pairs a stored document with its derived content.
type parsedDocument struct {
	doc       *store.Document
	content   string
	tags      []string
	backlinks []string
}

// Service owns the index lifecycle. The vector store pointer is
// swapped atomically on rebuild so searches never see a half-built
// index.
type Service struct {
	cfg      *config.Config
	meta     *store.MetadataStore
	embedder embed.Embedder
	chunker  *markdown.Chunker
	scanner  *Scanner
	logger   *slog.Logger

	// ShowProgress draws terminal progress bars during Build.
	ShowProgress bool

	mu      sync.RWMutex
	vectors *store.VectorStore
}

// NewService opens the metadata store and prepares an empty vector
// store. Call Load to pick up an existing index or Build to create one.
func NewService(cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	meta, err := store.NewMetadataStore(cfg.MetadataDBPath())
	if err != nil {
		return nil, err
	}

	vectors, err := store.NewVectorStore(embedder.Dimensions())
	if err != nil {
		meta.Close()
		return nil, err
	}

	scanner, err := NewScanner(cfg.Notes.Directory, cfg.Notes.ExcludePatterns)
	if err != nil {
		meta.Close()
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		meta:     meta,
		embedder: embedder,
		chunker: markdown.NewChunker(
			cfg.Indexing.ChunkSize,
			cfg.Indexing.ChunkOverlap,
			cfg.Indexing.MinChunkSize,
		),
		scanner: scanner,
		logger:  logger,
		vectors: vectors,
	}, nil
}

// Meta exposes the metadata store for retrieval.
func (s *Service) Meta() *store.MetadataStore {
	return s.meta
}

// VectorSearch queries the current vector index.
func (s *Service) VectorSearch(query []float32, k int) ([]store.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors.Search(query, k)
}

// VectorCount returns the number of indexed vectors.
func (s *Service) VectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors.Size()
}

// IndexExists reports whether both persistent index artifacts are on
// disk.
func (s *Service) IndexExists() bool {
	if _, err := os.Stat(s.cfg.MetadataDBPath()); err != nil {
		return false
	}
	if _, err := os.Stat(s.cfg.VectorIndexPath()); err != nil {
		return false
	}
	return true
}

// Load reads the persisted vector index into memory.
func (s *Service) Load(ctx context.Context) error {
	fresh, err := store.NewVectorStore(s.embedder.Dimensions())
	if err != nil {
		return err
	}
	if err := fresh.Load(s.cfg.VectorIndexPath()); err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexMissing, err)
	}

	s.swapVectors(fresh)
	s.logger.Info("index_loaded", slog.Int("vectors", fresh.Size()))
	return nil
}

// Build rebuilds the whole index from the notes directory: scan,
// parse, chunk, embed, persist. Parse failures skip the file; an
// embedding failure aborts the build and leaves the previous index in
// place.
func (s *Service) Build(ctx context.Context) error {
	started := time.Now()

	files, err := s.scanner.Scan()
	if err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
	}
	s.logger.Info("scan_completed",
		slog.String("directory", s.cfg.Notes.Directory),
		slog.Int("files", len(files)))
	if len(files) == 0 {
		s.logger.Warn("no_markdown_files_found")
		return nil
	}

	// Parse
	bar := s.newBar(len(files), "parsing documents")
	var parsed []parsedDocument
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := s.parseDocument(rel)
		if err != nil {
			s.logger.Error("parse_failed",
				slog.String("file", rel),
				slog.String("error", err.Error()))
			bar.Add(1)
			continue
		}
		parsed = append(parsed, p)
		bar.Add(1)
	}
	s.logger.Info("parse_completed", slog.Int("documents", len(parsed)))

	// Chunk
	type docChunks struct {
		doc    *store.Document
		chunks []*store.Chunk
	}
	var all []docChunks
	var texts []string
	var chunkIDs []string
	for _, p := range parsed {
		spans := s.chunker.Chunk(p.content)
		chunks := make([]*store.Chunk, len(spans))
		for i, span := range spans {
			chunks[i] = &store.Chunk{
				ChunkID:    fmt.Sprintf("%s_chunk_%d", p.doc.DocID, i),
				DocID:      p.doc.DocID,
				Content:    span.Text,
				ChunkIndex: i,
				StartPos:   span.Start,
				EndPos:     span.End,
			}
			texts = append(texts, span.Text)
			chunkIDs = append(chunkIDs, chunks[i].ChunkID)
		}
		all = append(all, docChunks{doc: p.doc, chunks: chunks})
	}
	s.logger.Info("chunk_completed", slog.Int("chunks", len(texts)))

	// Embed. This is the expensive step; the embedder's persistent
	// cache makes repeat builds cheap.
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
	}
	s.logger.Info("embed_completed", slog.Int("vectors", len(vectors)))

	// Persist metadata
	if err := s.meta.Reset(ctx); err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
	}
	bar = s.newBar(len(parsed), "storing metadata")
	for i, p := range parsed {
		if err := s.meta.UpsertDocument(ctx, p.doc); err != nil {
			return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
		}
		if err := s.meta.ReplaceChunks(ctx, p.doc.DocID, all[i].chunks); err != nil {
			return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
		}
		if len(p.tags) > 0 {
			if err := s.meta.ReplaceTags(ctx, p.doc.DocID, p.tags); err != nil {
				return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
			}
		}
		if len(p.backlinks) > 0 {
			if err := s.meta.ReplaceBacklinks(ctx, p.doc.DocID, p.backlinks); err != nil {
				return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
			}
		}
		bar.Add(1)
	}

	// Build and persist the vector index
	fresh, err := store.NewVectorStore(s.embedder.Dimensions())
	if err != nil {
		return err
	}
	if err := fresh.Add(chunkIDs, vectors); err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
	}
	if err := fresh.Save(s.cfg.VectorIndexPath()); err != nil {
		return nrerrors.Wrap(nrerrors.ErrCodeIndexFailed, err)
	}

	s.swapVectors(fresh)

	s.logger.Info("index_build_completed",
		slog.Int("documents", len(parsed)),
		slog.Int("chunks", len(texts)),
		slog.Duration("elapsed", time.Since(started)))
	return nil
}

// parseDocument reads and parses one note file.
func (s *Service) parseDocument(rel string) (parsedDocument, error) {
	abs := filepath.Join(s.cfg.Notes.Directory, rel)

	raw, meta, err := markdown.ParseFile(abs)
	if err != nil {
		return parsedDocument{}, err
	}

	tags := markdown.ExtractTags(raw)
	backlinks := markdown.ExtractBacklinks(raw)
	content := markdown.CleanContent(raw)

	doc := &store.Document{
		DocID:       hashID(rel),
		FilePath:    rel,
		Title:       meta.Title,
		CreatedAt:   meta.CreatedAt,
		ModifiedAt:  meta.ModifiedAt,
		ContentHash: hashID(content),
		Metadata:    meta.Fields,
	}

	return parsedDocument{
		doc:       doc,
		content:   content,
		tags:      tags,
		backlinks: backlinks,
	}, nil
}

// Stats collects index statistics for the status endpoint.
func (s *Service) Stats(ctx context.Context) (IndexStats, error) {
	metaStats, err := s.meta.Stats(ctx)
	if err != nil {
		return IndexStats{}, err
	}

	var sizeMB float64
	if info, err := os.Stat(s.cfg.VectorIndexPath()); err == nil {
		sizeMB = math.Round(float64(info.Size())/1024/1024*100) / 100
	}

	return IndexStats{
		TotalDocuments: metaStats.TotalDocuments,
		TotalChunks:    metaStats.TotalChunks,
		TotalTags:      metaStats.TotalTags,
		TotalFiles:     metaStats.TotalDocuments,
		VectorCount:    s.VectorCount(),
		LastUpdate:     time.Now().Format(time.RFC3339),
		IndexSizeMB:    sizeMB,
	}, nil
}

// Close releases the stores. The embedder is owned by the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	vectors := s.vectors
	s.mu.Unlock()

	var firstErr error
	if err := s.meta.Close(); err != nil {
		firstErr = err
	}
	if err := vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Service) swapVectors(fresh *store.VectorStore) {
	s.mu.Lock()
	old := s.vectors
	s.vectors = fresh
	s.mu.Unlock()
	old.Close()
}

// newBar returns a progress bar, or a silent one when progress output
// is disabled.
func (s *Service) newBar(total int, description string) *progressbar.ProgressBar {
	if !s.ShowProgress {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.Default(int64(total), description)
}

// hashID returns the md5 hex digest used for document IDs and content
// hashes.
func hashID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
