package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleBoostPartialCoverage(t *testing.T) {
	// Two keywords, one matches: coverage 0.5 boosts 1.5x
	assert.InDelta(t, 1.5, titleBoost("Logseq usage", "Logseq tips"), 1e-9)
}

func TestTitleBoostFullCoverage(t *testing.T) {
	assert.InDelta(t, 2.0, titleBoost("logseq usage", "Logseq usage notes"), 1e-9)
}

func TestTitleBoostNoMatch(t *testing.T) {
	assert.InDelta(t, 1.0, titleBoost("cooking pasta", "Logseq tips"), 1e-9)
}

func TestTitleBoostCaseInsensitive(t *testing.T) {
	assert.InDelta(t, 2.0, titleBoost("GOLANG", "golang cheatsheet"), 1e-9)
}

func TestTitleBoostStopwordsOnly(t *testing.T) {
	// Every token is a stopword so no keywords survive
	assert.InDelta(t, 1.0, titleBoost("the and or", "anything"), 1e-9)
	assert.InDelta(t, 1.0, titleBoost("的 了 和", "任何标题"), 1e-9)
}

func TestTitleBoostEmptyInputs(t *testing.T) {
	assert.InDelta(t, 1.0, titleBoost("", "title"), 1e-9)
	assert.InDelta(t, 1.0, titleBoost("query", ""), 1e-9)
}

func TestTitleBoostCJKNGrams(t *testing.T) {
	// "读书方法" contributes 2-grams and 3-grams; a title holding the
	// whole phrase covers all of them
	boost := titleBoost("读书方法", "我的读书方法总结")
	assert.InDelta(t, 2.0, boost, 1e-9)

	// A title covering only part of the phrase gets a partial boost
	partial := titleBoost("读书方法", "读书笔记")
	assert.Greater(t, partial, 1.0)
	assert.Less(t, partial, 2.0)
}

func TestExtractKeywordsMixed(t *testing.T) {
	keywords := extractKeywords("golang 并发编程")

	assert.Contains(t, keywords, "golang")
	assert.Contains(t, keywords, "并发")
	assert.Contains(t, keywords, "并发编")
	assert.NotContains(t, keywords, "a")
}
