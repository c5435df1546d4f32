package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsPage(entries ...[3]string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, e := range entries {
		fmt.Fprintf(&b,
			`<div class="result">
				<a class="result__a" href="%s">%s</a>
				<a class="result__snippet">%s</a>
			</div>`, e[0], e[1], e[2])
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestSearchParsesResultsAndFetchesContent(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsPage(
			[3]string{srv.URL + "/page1", "First Result", "snippet one"},
			[3]string{srv.URL + "/page2", "Second Result", "snippet two"},
		))
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article><p>Readable page one body text.</p></article></body></html>`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	c := NewClient(nil)
	c.BaseURL = srv.URL + "/html/"

	results := c.Search(context.Background(), "test query", 5)

	require.Len(t, results, 2)
	assert.Equal(t, "First Result", results[0].Title)
	assert.Equal(t, srv.URL+"/page1", results[0].URL)
	assert.Equal(t, "snippet one", results[0].Snippet)
	assert.Contains(t, results[0].Content, "Readable page one body text")
	assert.Equal(t, "web", results[0].Source)
	assert.False(t, results[0].FetchedAt.IsZero())

	// Failed page fetch falls back to the snippet
	assert.Equal(t, "snippet two", results[1].Content)
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewClient(nil)
	assert.Nil(t, c.Search(context.Background(), "   ", 5))
}

func TestSearchCapsResultCount(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	entries := make([][3]string, 8)
	for i := range entries {
		entries[i] = [3]string{
			fmt.Sprintf("%s/p%d", srv.URL, i),
			fmt.Sprintf("Result %d", i),
			"snippet",
		}
	}
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsPage(entries...))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>page</p></body></html>")
	})

	c := NewClient(nil)
	c.BaseURL = srv.URL + "/html/"

	results := c.Search(context.Background(), "query", 3)
	assert.Len(t, results, 3)
}

func TestSearchRetriesUSRegion(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var regions []string
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		region := r.URL.Query().Get("kl")
		regions = append(regions, region)
		if region == "wt-wt" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprint(w, resultsPage([3]string{srv.URL + "/page", "US Result", "snippet"}))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>body</p></body></html>")
	})

	c := NewClient(nil)
	c.BaseURL = srv.URL + "/html/"

	results := c.Search(context.Background(), "query", 5)

	require.Len(t, results, 1)
	assert.Equal(t, "US Result", results[0].Title)
	assert.Equal(t, []string{"wt-wt", "us-en"}, regions)
}

func TestSearchUnreachableEndpoint(t *testing.T) {
	c := NewClient(nil)
	c.BaseURL = "http://127.0.0.1:1/html/"

	assert.Nil(t, c.Search(context.Background(), "query", 5))
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://example.com/page",
		resolveRedirect("/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=abc"))
	assert.Equal(t, "https://direct.example.com",
		resolveRedirect("https://direct.example.com"))
	assert.Equal(t, "", resolveRedirect(""))
}
