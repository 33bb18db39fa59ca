// Package dedup detects keywords and titles that an existing article already covers.
package dedup

import (
	"strings"

	"blogwire/internal/core"
	"blogwire/internal/textutil"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Default thresholds.
const (
	DefaultTitleSimilarity = 0.75
	DefaultTopicSimilarity = 0.70
	DefaultWordOverlap     = 0.6
)

// Match describes why a candidate counts as a near-duplicate.
type Match struct {
	Article    core.ArticleSummary `json:"article"`
	Similarity float64             `json:"similarity"`
	Overlap    float64             `json:"overlap"`
	Rule       string              `json:"rule"` // exact_keyword, exact_title, similarity, overlap
}

// Checker compares candidates against published articles.
type Checker struct {
	TitleSimilarity float64
	TopicSimilarity float64
	WordOverlap     float64
	metric          strutil.StringMetric
}

// NewChecker creates a checker; non-positive thresholds take the defaults.
func NewChecker(titleSimilarity, topicSimilarity, wordOverlap float64) *Checker {
	if titleSimilarity <= 0 {
		titleSimilarity = DefaultTitleSimilarity
	}
	if topicSimilarity <= 0 {
		topicSimilarity = DefaultTopicSimilarity
	}
	if wordOverlap <= 0 {
		wordOverlap = DefaultWordOverlap
	}
	return &Checker{
		TitleSimilarity: titleSimilarity,
		TopicSimilarity: topicSimilarity,
		WordOverlap:     wordOverlap,
		metric:          metrics.NewLevenshtein(),
	}
}

// TopicCovered reports whether keyword is already covered by one of existing.
// It runs before generation so a covered topic never costs a generation call.
func (c *Checker) TopicCovered(keyword string, existing []core.ArticleSummary) (*Match, bool) {
	norm := textutil.NormalizeTitle(keyword)
	if norm == "" {
		return nil, false
	}
	normKeyword := textutil.NormalizeKeyword(keyword)
	words := contentWords(norm)

	for _, a := range existing {
		if a.Keyword != "" && textutil.NormalizeKeyword(a.Keyword) == normKeyword {
			return &Match{Article: a, Similarity: 1, Overlap: 1, Rule: "exact_keyword"}, true
		}

		title := textutil.NormalizeTitle(a.Title)
		if title == norm {
			return &Match{Article: a, Similarity: 1, Overlap: 1, Rule: "exact_title"}, true
		}

		sim := strutil.Similarity(norm, title, c.metric)
		if a.Keyword != "" {
			if ks := strutil.Similarity(norm, textutil.NormalizeTitle(a.Keyword), c.metric); ks > sim {
				sim = ks
			}
		}
		overlap := wordOverlap(words, contentWords(title))

		if sim >= c.TopicSimilarity {
			return &Match{Article: a, Similarity: sim, Overlap: overlap, Rule: "similarity"}, true
		}
		if overlap >= c.WordOverlap {
			return &Match{Article: a, Similarity: sim, Overlap: overlap, Rule: "overlap"}, true
		}
	}
	return nil, false
}

// TitleTaken reports whether a freshly generated title is too close to an existing one.
func (c *Checker) TitleTaken(title string, existing []core.ArticleSummary) (*Match, bool) {
	norm := textutil.NormalizeTitle(title)
	if norm == "" {
		return nil, false
	}
	for _, a := range existing {
		other := textutil.NormalizeTitle(a.Title)
		if other == norm {
			return &Match{Article: a, Similarity: 1, Rule: "exact_title"}, true
		}
		if sim := strutil.Similarity(norm, other, c.metric); sim >= c.TitleSimilarity {
			return &Match{Article: a, Similarity: sim, Rule: "similarity"}, true
		}
	}
	return nil, false
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "for": {}, "how": {}, "in": {}, "is": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "what": {}, "with": {}, "you": {},
	"your": {}, "about": {}, "need": {}, "know": {}, "everything": {}, "guide": {},
}

// contentWords returns the distinct non-stop words of an already normalized string.
func contentWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// wordOverlap is the share of the candidate's words that also appear in the other set.
func wordOverlap(candidate, other map[string]struct{}) float64 {
	if len(candidate) == 0 || len(other) == 0 {
		return 0
	}
	common := 0
	for w := range candidate {
		if _, ok := other[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(candidate))
}
