// Package search implements hybrid retrieval: vector search over
// local note chunks fused with web results, plus citation assembly
// and streamed answer generation.
package search

import "time"

// Result is one retrieval hit, local or web.
type Result struct {
	Content   string     `json:"content"`
	FilePath  string     `json:"file_path"`
	Title     string     `json:"title"`
	Score     float64    `json:"score"`
	Source    string     `json:"source"`
	ChunkID   string     `json:"chunk_id,omitempty"`
	Tags      []string   `json:"tags"`
	Backlinks []string   `json:"backlinks"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// Citation points a numbered answer reference at its source.
type Citation struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`

	// Local citations
	FilePath  string   `json:"file_path,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`

	// Web citations
	URL string `json:"url,omitempty"`
}

// Source values.
const (
	SourceLocal = "local"
	SourceWeb   = "web"
)

// webResultScore is the fixed score assigned to web hits; local hits
// carry real similarity-derived scores and outrank relevant notes.
const webResultScore = 0.5

// totalResultBudget is split between local and web retrieval by the
// local ratio.
const totalResultBudget = 20
