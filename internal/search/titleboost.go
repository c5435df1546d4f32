package search

import (
	"regexp"
	"strings"
)

// titleStopwords are ignored when extracting query keywords. Mixed
// Chinese and English because queries come in both.
var titleStopwords = map[string]struct{}{
	"的": {}, "了": {}, "和": {}, "是": {}, "在": {}, "有": {},
	"我": {}, "你": {}, "他": {}, "她": {}, "它": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"告诉": {}, "笔记": {}, "中": {}, "哪些": {}, "相关": {},
	"信息": {}, "关于": {}, "有关": {}, "么": {}, "吗": {},
}

var tokenSplitPattern = regexp.MustCompile(`[\s，。！？、]+`)

// titleBoost rewards results whose title covers the query keywords.
// Keywords are ASCII words of two or more characters plus the 2- and
// 3-grams of CJK runs. Coverage maps linearly onto [1.0, 2.0]: no
// keyword in the title means 1.0, full coverage doubles the score.
func titleBoost(query, title string) float64 {
	if query == "" || title == "" {
		return 1.0
	}

	queryLower := strings.ToLower(query)
	titleLower := strings.ToLower(title)

	keywords := extractKeywords(queryLower)
	if len(keywords) == 0 {
		return 1.0
	}

	matched := 0
	for keyword := range keywords {
		if strings.Contains(titleLower, keyword) {
			matched++
		}
	}

	coverage := float64(matched) / float64(len(keywords))
	return 1.0 + coverage
}

func extractKeywords(queryLower string) map[string]struct{} {
	keywords := make(map[string]struct{})

	for _, token := range tokenSplitPattern.Split(queryLower, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if isASCII(token) {
			if len(token) >= 2 {
				if _, stop := titleStopwords[token]; !stop {
					keywords[token] = struct{}{}
				}
			}
			continue
		}

		// CJK tokens contribute their 2- and 3-grams
		runes := []rune(token)
		for i := range runes {
			for _, n := range []int{2, 3} {
				if i+n > len(runes) {
					continue
				}
				word := string(runes[i : i+n])
				if isASCII(word) {
					continue
				}
				if _, stop := titleStopwords[word]; stop {
					continue
				}
				keywords[word] = struct{}{}
			}
		}
	}

	return keywords
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
