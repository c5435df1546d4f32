package search

import (
	"sort"
	"time"
)

// FormatCitations deduplicates results by source file (or URL for web
// hits), keeps the best score per source, and numbers them from one in
// descending score order.
func FormatCitations(results []Result) []Citation {
	type entry struct {
		result Result
		score  float64
	}
	best := make(map[string]entry)

	for _, result := range results {
		key := result.FilePath
		if result.Source == SourceWeb {
			key = result.URL
		}
		if key == "" {
			continue
		}
		if existing, ok := best[key]; !ok || result.Score > existing.score {
			best[key] = entry{result: result, score: result.Score}
		}
	}

	unique := make([]entry, 0, len(best))
	for _, e := range best {
		unique = append(unique, e)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].score > unique[j].score
	})

	citations := make([]Citation, 0, len(unique))
	for i, e := range unique {
		citation := Citation{
			ID:     i + 1,
			Title:  e.result.Title,
			Source: e.result.Source,
		}
		if e.result.Source == SourceLocal {
			citation.FilePath = e.result.FilePath
			citation.Tags = e.result.Tags
			if e.result.CreatedAt != nil && !e.result.CreatedAt.IsZero() {
				citation.CreatedAt = e.result.CreatedAt.Format(time.RFC3339)
			}
		} else {
			citation.URL = e.result.URL
		}
		citations = append(citations, citation)
	}

	return citations
}
