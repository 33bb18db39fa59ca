// Package affiliate rewrites keyword occurrences in article bodies into affiliate links.
package affiliate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"blogwire/internal/core"
	"blogwire/internal/logger"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// DefaultMaxLinks caps insertions per article.
const DefaultMaxLinks = 3

// LinkStore is the part of the affiliate link repository the injector needs.
type LinkStore interface {
	ListActive(ctx context.Context) ([]core.AffiliateLink, error)
	IncrementInsertions(ctx context.Context, ids []string) error
}

// Insertion describes one rewritten occurrence.
type Insertion struct {
	LinkID  string `json:"link_id"`
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
	Text    string `json:"text"` // original text of the occurrence
}

// Result is the rewritten body and the links placed in it.
type Result struct {
	Body  string
	Links []Insertion
}

// Injector places affiliate links into markdown bodies.
type Injector struct {
	store    LinkStore
	maxLinks int
	log      *logger.Logger
}

// NewInjector creates an Injector. A negative maxLinks uses DefaultMaxLinks; zero disables injection.
func NewInjector(store LinkStore, maxLinks int) *Injector {
	if maxLinks < 0 {
		maxLinks = DefaultMaxLinks
	}
	return &Injector{store: store, maxLinks: maxLinks, log: logger.Get()}
}

// WithLogger replaces the logger.
func (i *Injector) WithLogger(l *logger.Logger) *Injector {
	i.log = l
	return i
}

// protectedPatterns match spans that must never be rewritten.
var protectedPatterns = []*regexp.Regexp{
	// fenced code
	regexp.MustCompile("(?s)```.*?```"),
	regexp.MustCompile("(?s)~~~.*?~~~"),
	// inline code
	regexp.MustCompile("`[^`\n]+`"),
	// markdown links, images and reference definitions
	regexp.MustCompile(`!?\[[^\]]*\]\([^)]*\)`),
	regexp.MustCompile(`(?m)^\[[^\]]+\]:\s*\S+.*$`),
	// html anchors, tags and autolinks
	regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a\s*>`),
	regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9-]*(\s[^<>\n]*)?/?>`),
	regexp.MustCompile(`<[A-Za-z][A-Za-z0-9+.-]*:[^<>\s]*>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
	// bare urls
	regexp.MustCompile(`https?://[^\s)\]>]+`),
}

type span struct{ start, end int }

// Inject rewrites the first unprotected whole-word occurrence of each active link keyword,
// up to the configured maximum. articlesSoFar rotates the starting link so that
// consecutive articles in a cycle favour different links. Failure to load links
// returns the body unchanged together with the error.
func (i *Injector) Inject(ctx context.Context, body string, articlesSoFar int) (Result, error) {
	result := Result{Body: body}
	if i.maxLinks == 0 || strings.TrimSpace(body) == "" {
		return result, nil
	}

	links, err := i.store.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load affiliate links: %w", err)
	}

	candidates := presentLinks(body, uniqueByKeyword(links))
	if len(candidates) == 0 {
		return result, nil
	}
	if articlesSoFar > 0 {
		n := articlesSoFar % len(candidates)
		rotated := make([]core.AffiliateLink, 0, len(candidates))
		rotated = append(rotated, candidates[n:]...)
		candidates = append(rotated, candidates[:n]...)
	}

	protected := protectedSpans(body)
	type replacement struct {
		span
		link core.AffiliateLink
	}
	var chosen []replacement

	for _, link := range candidates {
		if len(chosen) >= i.maxLinks {
			break
		}
		loc, ok := firstOccurrence(body, link.Keyword, protected)
		if !ok {
			continue
		}
		chosen = append(chosen, replacement{span: loc, link: link})
		protected = append(protected, loc)
	}
	if len(chosen) == 0 {
		return result, nil
	}

	// Insertion order is kept for the report; rewriting happens back to front so
	// earlier offsets stay valid.
	ids := make([]string, 0, len(chosen))
	for _, c := range chosen {
		ids = append(ids, c.link.ID)
		result.Links = append(result.Links, Insertion{
			LinkID:  c.link.ID,
			Keyword: c.link.Keyword,
			URL:     c.link.URL,
			Text:    body[c.start:c.end],
		})
	}
	sort.Slice(chosen, func(a, b int) bool { return chosen[a].start > chosen[b].start })
	out := body
	for _, c := range chosen {
		out = out[:c.start] + "[" + out[c.start:c.end] + "](" + c.link.URL + ")" + out[c.end:]
	}
	result.Body = out

	if err := i.store.IncrementInsertions(ctx, ids); err != nil {
		i.log.Warn("Failed to record affiliate insertions", "error", err.Error(), "links", len(ids))
	}
	i.log.Debug("Injected affiliate links", "count", len(ids))
	return result, nil
}

// uniqueByKeyword keeps the first link for each case-insensitive keyword.
func uniqueByKeyword(links []core.AffiliateLink) []core.AffiliateLink {
	seen := map[string]bool{}
	out := make([]core.AffiliateLink, 0, len(links))
	for _, l := range links {
		key := strings.ToLower(strings.TrimSpace(l.Keyword))
		if key == "" || l.URL == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

// presentLinks keeps, in priority order, the links whose keyword appears anywhere in body.
func presentLinks(body string, links []core.AffiliateLink) []core.AffiliateLink {
	if len(links) == 0 {
		return nil
	}
	keywords := make([]string, len(links))
	for i, l := range links {
		keywords[i] = strings.ToLower(strings.TrimSpace(l.Keyword))
	}
	matcher := ahocorasick.NewStringMatcher(keywords)
	hits := map[int]bool{}
	for _, idx := range matcher.Match([]byte(strings.ToLower(body))) {
		hits[idx] = true
	}

	out := make([]core.AffiliateLink, 0, len(hits))
	for i, l := range links {
		if hits[i] {
			out = append(out, l)
		}
	}
	return out
}

func protectedSpans(body string) []span {
	var spans []span
	for _, re := range protectedPatterns {
		for _, loc := range re.FindAllStringIndex(body, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	return spans
}

// firstOccurrence finds the first case-insensitive whole-word match of keyword outside protected.
func firstOccurrence(body, keyword string, protected []span) (span, bool) {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(strings.TrimSpace(keyword)))
	if err != nil {
		return span{}, false
	}
	for _, loc := range re.FindAllStringIndex(body, -1) {
		s := span{loc[0], loc[1]}
		if !wholeWord(body, s) || overlaps(s, protected) {
			continue
		}
		return s, true
	}
	return span{}, false
}

func wholeWord(body string, s span) bool {
	if s.start > 0 {
		r, _ := utf8.DecodeLastRuneInString(body[:s.start])
		if isWordRune(r) {
			return false
		}
	}
	if s.end < len(body) {
		r, _ := utf8.DecodeRuneInString(body[s.end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func overlaps(s span, spans []span) bool {
	for _, p := range spans {
		if s.start < p.end && p.start < s.end {
			return true
		}
	}
	return false
}
