// Package markdown parses Logseq-style Markdown notes: front-matter
// metadata, wiki-link backlinks, hashtag tags, markup cleaning, and
// chunking of the cleaned text.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Patterns for link and tag extraction.
var (
	backlinkPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	tagPattern      = regexp.MustCompile(`(?:^|\s)#([a-zA-Z0-9_\p{Han}]+)`)
	propertyPattern = regexp.MustCompile(`(?m)^\s*-\s*(\w+)::\s*(.+)$`)
)

// Patterns for markup cleaning, applied in order.
var (
	fencedCodePattern = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodePattern = regexp.MustCompile("`[^`]+`")
	imagePattern      = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	wikiLinkPattern   = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldPattern       = regexp.MustCompile(`\*\*([^\*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^\*]+)\*`)
	quotePattern      = regexp.MustCompile(`(?m)^>\s+`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	orderedPattern    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
)

// FileMeta carries per-file metadata recovered during parsing.
type FileMeta struct {
	// Title is the front-matter title, falling back to the filename stem.
	Title string
	// CreatedAt and ModifiedAt come from the filesystem.
	CreatedAt  time.Time
	ModifiedAt time.Time
	// Fields is the free-form front-matter mapping plus any Logseq
	// "key:: value" properties found in the body.
	Fields map[string]any
}

// ParseFile reads a Markdown file and splits it into raw body content
// and metadata. Front-matter is YAML delimited by "---" lines.
func ParseFile(path string) (string, FileMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", FileMeta{}, fmt.Errorf("read note file: %w", err)
	}

	content, fields := splitFrontMatter(string(data))

	for key, value := range ParseProperties(content) {
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", FileMeta{}, fmt.Errorf("stat note file: %w", err)
	}

	meta := FileMeta{
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		Fields:     fields,
	}

	if title, ok := fields["title"].(string); ok && title != "" {
		meta.Title = title
	} else {
		base := filepath.Base(path)
		meta.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return content, meta, nil
}

// splitFrontMatter separates a YAML front-matter block from the body.
// Malformed front-matter is left in place and treated as body text.
func splitFrontMatter(raw string) (string, map[string]any) {
	fields := make(map[string]any)

	if !strings.HasPrefix(raw, "---\n") && !strings.HasPrefix(raw, "---\r\n") {
		return raw, fields
	}

	rest := raw[strings.IndexByte(raw, '\n')+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return raw, fields
	}

	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return raw, make(map[string]any)
	}

	return body, fields
}

// ExtractBacklinks returns the deduplicated set of [[page]] targets.
func ExtractBacklinks(content string) []string {
	return uniqueMatches(backlinkPattern, content)
}

// ExtractTags returns the deduplicated set of #tag names.
// A tag is "#" followed by letters, digits, underscores, or CJK
// characters, preceded by start-of-string or whitespace.
func ExtractTags(content string) []string {
	return uniqueMatches(tagPattern, content)
}

// ParseProperties extracts Logseq "- key:: value" properties.
func ParseProperties(content string) map[string]string {
	properties := make(map[string]string)
	for _, m := range propertyPattern.FindAllStringSubmatch(content, -1) {
		properties[m[1]] = strings.TrimSpace(m[2])
	}
	return properties
}

// CleanContent strips Markdown markup down to searchable text.
// Code blocks and images are removed entirely; links and wiki links
// keep their visible text; structural markers are dropped and runs of
// three or more blank lines collapse to two.
func CleanContent(content string) string {
	content = fencedCodePattern.ReplaceAllString(content, "")
	content = inlineCodePattern.ReplaceAllString(content, "")
	content = imagePattern.ReplaceAllString(content, "")
	content = linkPattern.ReplaceAllString(content, "$1")
	content = wikiLinkPattern.ReplaceAllString(content, "$1")
	content = headingPattern.ReplaceAllString(content, "")
	content = boldPattern.ReplaceAllString(content, "$1")
	content = italicPattern.ReplaceAllString(content, "$1")
	content = quotePattern.ReplaceAllString(content, "")
	content = bulletPattern.ReplaceAllString(content, "")
	content = orderedPattern.ReplaceAllString(content, "")
	content = blankRunPattern.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}

func uniqueMatches(pattern *regexp.Regexp, content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(content, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
