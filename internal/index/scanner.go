// Package index builds and serves the note index: scanning the corpus,
// parsing and chunking documents, embedding chunks, and persisting
// everything through the store layer.
package index

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// markdownExtensions are the file extensions picked up by the scan.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// Scanner walks the notes directory and returns the Markdown files to
// index, minus the excluded ones.
type Scanner struct {
	root     string
	suffixes []string    // from "*.ext" patterns, matched against the file name
	globs    []glob.Glob // everything else, matched against path and segments
}

// NewScanner compiles the exclude patterns. Patterns starting with
// "*." exclude by file suffix; any other pattern is a glob matched
// against the relative path, any path segment, and any leading
// sub-path, so a bare directory name excludes its whole subtree.
func NewScanner(root string, excludePatterns []string) (*Scanner, error) {
	s := &Scanner{root: root}
	for _, pattern := range excludePatterns {
		if strings.HasPrefix(pattern, "*.") {
			s.suffixes = append(s.suffixes, pattern[1:])
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// Scan returns the relative paths of all Markdown files under the
// root, sorted by the walk order of the filesystem.
func (s *Scanner) Scan() ([]string, error) {
	var files []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !markdownExtensions[strings.ToLower(filepath.Ext(rel))] {
			return nil
		}
		if s.excluded(rel) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan notes directory: %w", err)
	}

	return files, nil
}

// excluded reports whether a relative path matches any exclude rule.
func (s *Scanner) excluded(rel string) bool {
	base := filepath.Base(rel)
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}

	for _, g := range s.globs {
		if g.Match(rel) {
			return true
		}
		for _, candidate := range pathCandidates(rel) {
			if g.Match(candidate) {
				return true
			}
		}
	}
	return false
}

// pathCandidates lists every segment and every leading sub-path of rel.
func pathCandidates(rel string) []string {
	segments := strings.Split(rel, "/")
	candidates := make([]string, 0, len(segments)*2)
	candidates = append(candidates, segments...)
	for i := 1; i < len(segments); i++ {
		candidates = append(candidates, strings.Join(segments[:i], "/"))
	}
	return candidates
}
