// Package store provides the persistence layer: document and chunk
// metadata in SQLite, chunk vectors in an HNSW index, and an embedding
// cache keyed by content hash.
package store

import "time"

// Document is one indexed note file.
type Document struct {
	// DocID is the md5 hex digest of the file path relative to the
	// notes root, so IDs stay stable across rebuilds.
	DocID      string         `json:"doc_id"`
	FilePath   string         `json:"file_path"`
	Title      string         `json:"title"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
	// ContentHash is the md5 hex digest of the cleaned content.
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Chunk is one embeddable span of a document.
type Chunk struct {
	// ChunkID is "<doc_id>_chunk_<chunk_index>".
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	// StartPos and EndPos are rune offsets into the cleaned content.
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
}

// Stats summarizes the metadata store contents.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
	TotalTags      int `json:"total_tags"`
}

// VectorHit is one nearest-neighbour match.
type VectorHit struct {
	ChunkID string
	// Similarity is the cosine similarity in [-1, 1].
	Similarity float32
}
