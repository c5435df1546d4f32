package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCitationsDeduplicatesByFile(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	results := []Result{
		{Source: SourceLocal, FilePath: "pages/go.md", Title: "Go", Score: 0.6, Tags: []string{"golang"}, CreatedAt: &created},
		{Source: SourceLocal, FilePath: "pages/go.md", Title: "Go", Score: 0.9, CreatedAt: &created},
		{Source: SourceLocal, FilePath: "pages/rust.md", Title: "Rust", Score: 0.7},
		{Source: SourceWeb, URL: "https://example.com", Title: "Example", Score: 0.5},
	}

	citations := FormatCitations(results)

	require.Len(t, citations, 3)

	// Ordered by best score per source, numbered from one
	assert.Equal(t, 1, citations[0].ID)
	assert.Equal(t, "pages/go.md", citations[0].FilePath)
	assert.Equal(t, 2, citations[1].ID)
	assert.Equal(t, "pages/rust.md", citations[1].FilePath)
	assert.Equal(t, 3, citations[2].ID)
	assert.Equal(t, "https://example.com", citations[2].URL)

	// Local citations carry file metadata, web citations the URL
	assert.Equal(t, SourceLocal, citations[0].Source)
	assert.Equal(t, "2025-05-01T00:00:00Z", citations[0].CreatedAt)
	assert.Empty(t, citations[2].FilePath)
	assert.Equal(t, SourceWeb, citations[2].Source)
}

func TestFormatCitationsSkipsEmptyKeys(t *testing.T) {
	results := []Result{
		{Source: SourceLocal, FilePath: "", Title: "No Path", Score: 0.9},
		{Source: SourceWeb, URL: "", Title: "No URL", Score: 0.8},
		{Source: SourceLocal, FilePath: "pages/a.md", Title: "A", Score: 0.4},
	}

	citations := FormatCitations(results)

	require.Len(t, citations, 1)
	assert.Equal(t, "pages/a.md", citations[0].FilePath)
}

func TestFormatCitationsEmpty(t *testing.T) {
	assert.Empty(t, FormatCitations(nil))
}
