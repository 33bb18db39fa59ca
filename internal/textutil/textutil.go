// Package textutil holds the text normalization shared by discovery, dedup and persistence.
package textutil

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lower-cases s, folds accents, replaces every run of non-alphanumeric
// characters with a single hyphen and trims leading/trailing hyphens.
func Slugify(s string) string {
	folded := foldAccents(s)

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// UniqueSlug returns base, or base with the smallest numeric suffix (-2, -3, ...) that
// exists reports as free.
func UniqueSlug(base string, exists func(string) (bool, error)) (string, error) {
	if base == "" {
		base = "post"
	}
	candidate := base
	for n := 2; ; n++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// NormalizeKeyword case-folds, trims and collapses internal whitespace.
func NormalizeKeyword(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// NormalizeTitle is NormalizeKeyword with accents and punctuation removed,
// used for similarity comparisons.
func NormalizeTitle(s string) string {
	folded := cases.Fold().String(foldAccents(s))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(cleaned), " ")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// PlainText renders markdown and returns the visible text.
func PlainText(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	htmlBytes := markdown.ToHTML([]byte(md), p, renderer)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBytes)))
	if err != nil {
		return md
	}
	// Block elements are joined without whitespace by Text(); pad them first.
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return doc.Text()
}

// CountWords counts the words a reader sees once the markdown is rendered.
func CountWords(md string) int {
	return len(strings.Fields(PlainText(md)))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
