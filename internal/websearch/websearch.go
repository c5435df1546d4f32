// Package websearch queries DuckDuckGo's HTML endpoint and enriches
// the hits with extracted page content.
package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL is DuckDuckGo's JavaScript-free results page.
	DefaultBaseURL = "https://html.duckduckgo.com/html/"

	// maxQueryRunes caps the query passed upstream.
	maxQueryRunes = 500

	// maxContentRunes caps extracted page text.
	maxContentRunes = 1000

	// fetchTimeout bounds a single page download.
	fetchTimeout = 10 * time.Second

	// searchTimeout bounds a single results-page request.
	searchTimeout = 15 * time.Second
)

// Result is one web search hit.
type Result struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Client searches the web. The zero BaseURL means DuckDuckGo; tests
// point it at a local server.
type Client struct {
	BaseURL string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a web search client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
	}
}

// Search returns up to maxResults hits with page content attached.
// Search failures degrade to an empty result list rather than an
// error, because web results only supplement local notes.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		c.logger.Warn("web_search_empty_query")
		return nil
	}
	if runes := []rune(query); len(runes) > maxQueryRunes {
		query = string(runes[:maxQueryRunes])
	}
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	c.logger.Info("web_search_started", slog.String("query", query))

	// Global region first, then a US retry; some queries only resolve
	// regionally.
	results, err := c.searchRegion(ctx, query, maxResults, "wt-wt")
	if err != nil {
		c.logger.Error("web_search_failed", slog.String("error", err.Error()))
		return nil
	}
	if len(results) == 0 {
		results, err = c.searchRegion(ctx, query, maxResults, "us-en")
		if err != nil || len(results) == 0 {
			c.logger.Warn("web_search_no_results", slog.String("query", query))
			return nil
		}
	}

	c.fetchAll(ctx, results)

	c.logger.Info("web_search_completed", slog.Int("results", len(results)))
	return results
}

// searchRegion fetches and parses one results page.
func (c *Client) searchRegion(ctx context.Context, query string, maxResults int, region string) ([]Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("kl", region)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; noterag/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	results, err := parseResultsPage(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	now := time.Now()
	for i := range results {
		results[i].Source = "web"
		results[i].FetchedAt = now
	}
	return results, nil
}

// fetchAll downloads page content for every hit concurrently. A failed
// fetch falls back to the snippet.
func (c *Client) fetchAll(ctx context.Context, results []Result) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			content, err := c.fetchContent(gctx, results[i].URL)
			if err != nil {
				c.logger.Warn("web_page_fetch_failed",
					slog.String("url", results[i].URL),
					slog.String("error", err.Error()))
				results[i].Content = results[i].Snippet
				return nil
			}
			results[i].Content = content
			return nil
		})
	}
	g.Wait()
}

// fetchContent extracts readable text from one page.
func (c *Client) fetchContent(ctx context.Context, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; noterag/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 2<<20), parsed)
	if err != nil {
		return "", fmt.Errorf("extract page text: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if runes := []rune(text); len(runes) > maxContentRunes {
		text = string(runes[:maxContentRunes]) + "..."
	}
	return text, nil
}

// parseResultsPage pulls titles, links, and snippets out of the HTML
// results page. Result links carry class "result__a"; snippets carry
// class "result__snippet".
func parseResultsPage(r io.Reader) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			results = append(results, Result{
				Title: strings.TrimSpace(textContent(n)),
				URL:   resolveRedirect(attrValue(n, "href")),
			})
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(results) > 0 {
			if results[len(results)-1].Snippet == "" {
				results[len(results)-1].Snippet = strings.TrimSpace(textContent(n))
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	// Drop hits without a usable link
	kept := results[:0]
	for _, r := range results {
		if r.URL != "" {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<url> redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
