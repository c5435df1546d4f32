package markdown

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileWithFrontMatter(t *testing.T) {
	// Given a note with YAML front-matter
	dir := t.TempDir()
	path := filepath.Join(dir, "golang-notes.md")
	raw := `---
title: Go Concurrency
tags: [golang, concurrency]
---
Goroutines are cheap. See [[Channels]].
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	// When parsing
	content, meta, err := ParseFile(path)
	require.NoError(t, err)

	// Then the front-matter is split off and the title comes from it
	assert.Equal(t, "Go Concurrency", meta.Title)
	assert.Equal(t, "golang", meta.Fields["tags"].([]any)[0])
	assert.Contains(t, content, "Goroutines are cheap")
	assert.NotContains(t, content, "title:")
	assert.False(t, meta.ModifiedAt.IsZero())
}

func TestParseFileTitleFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daily journal.md")
	require.NoError(t, os.WriteFile(path, []byte("no front matter here"), 0o644))

	_, meta, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "daily journal", meta.Title)
}

func TestParseFileMalformedFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.md")
	raw := "---\n: : not yaml : :\n---\nbody text\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	content, meta, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "broken", meta.Title)
	assert.Contains(t, content, "body text")
}

func TestParseFilePicksUpLogseqProperties(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.md")
	raw := "- type:: project\n- status:: active\n\nProject notes body.\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, meta, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "project", meta.Fields["type"])
	assert.Equal(t, "active", meta.Fields["status"])
}

func TestExtractBacklinks(t *testing.T) {
	content := "See [[Go Modules]] and [[测试页面]], plus [[Go Modules]] again."

	links := ExtractBacklinks(content)

	assert.ElementsMatch(t, []string{"Go Modules", "测试页面"}, links)
}

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"ascii and cjk", "#golang is fun, also #读书笔记 here", []string{"golang", "读书笔记"}},
		{"start of string", "#first tag", []string{"first"}},
		{"not mid-word", "issue#123 is not a tag", nil},
		{"dedup", "#go and #go again", []string{"go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ExtractTags(tt.content))
		})
	}
}

func TestParseProperties(t *testing.T) {
	content := "- type:: book\n- rating:: 5\nnot a property line\n  - alias:: ref\n"

	props := ParseProperties(content)

	assert.Equal(t, "book", props["type"])
	assert.Equal(t, "5", props["rating"])
	assert.Equal(t, "ref", props["alias"])
	assert.Len(t, props, 3)
}

func TestCleanContent(t *testing.T) {
	raw := "# Heading\n\nSome **bold** and *italic* text with `inline code`.\n\n" +
		"```go\nfunc main() {}\n```\n\n" +
		"A [link](https://example.com) and a [[Wiki Page]].\n\n" +
		"![screenshot](img.png)\n\n" +
		"> quoted line\n\n- bullet one\n1. numbered\n\n\n\n\nend"

	got := CleanContent(raw)

	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "func main")
	assert.NotContains(t, got, "inline code")
	assert.NotContains(t, got, "img.png")
	assert.NotContains(t, got, "https://example.com")
	assert.Contains(t, got, "bold")
	assert.Contains(t, got, "italic")
	assert.Contains(t, got, "link")
	assert.Contains(t, got, "Wiki Page")
	assert.Contains(t, got, "quoted line")
	assert.Contains(t, got, "bullet one")
	assert.NotContains(t, got, "\n\n\n")
}
