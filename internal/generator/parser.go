package generator

import (
	"regexp"
	"strings"

	"blogwire/internal/core"
	"blogwire/internal/textutil"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	excerptFallbackRunes = 200
	metaDescriptionRunes = 160
)

// labelPattern matches "TITLE: x", "**TITLE:** x" and "**TITLE**: x" (optionally behind a
// markdown heading marker).
var labelPattern = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?\*{0,2}\s*(TITLE|META[_ ]DESCRIPTION|META[_ ]KEYWORDS|EXCERPT|CONTENT)\s*\*{0,2}\s*:\s*\*{0,2}\s*(.*)$`)

var separatorPattern = regexp.MustCompile(`^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)

// parseResponse turns the labelled service output into a Draft. Missing metadata
// falls back to values derived from the keyword and the body.
func parseResponse(raw, keyword string) *core.Draft {
	sections := map[string][]string{}
	var current string
	var sawLabel bool
	var unlabelled []string

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if current != "CONTENT" {
			if m := labelPattern.FindStringSubmatch(line); m != nil {
				current = strings.ReplaceAll(strings.ToUpper(m[1]), " ", "_")
				sawLabel = true
				if rest := strings.TrimSpace(m[2]); rest != "" {
					sections[current] = append(sections[current], rest)
				}
				continue
			}
		}
		switch {
		case current == "":
			unlabelled = append(unlabelled, line)
		case current != "CONTENT" && separatorPattern.MatchString(line):
			// Separator between header block and body; anything after belongs to the body
			// unless another label follows.
			current = "BODY_AFTER_SEPARATOR"
		default:
			sections[current] = append(sections[current], line)
		}
	}

	body := joinBody(sections["CONTENT"])
	if body == "" {
		body = joinBody(sections["BODY_AFTER_SEPARATOR"])
	}
	if body == "" && !sawLabel {
		body = joinBody(unlabelled)
	}

	draft := &core.Draft{
		Title:           cleanTitle(singleLine(sections["TITLE"])),
		Body:            body,
		Excerpt:         strings.Join(strings.Fields(strings.Join(sections["EXCERPT"], " ")), " "),
		MetaDescription: singleLine(sections["META_DESCRIPTION"]),
		MetaKeywords:    singleLine(sections["META_KEYWORDS"]),
	}
	applyFallbacks(draft, keyword)
	draft.WordCount = textutil.CountWords(draft.Body)
	return draft
}

func applyFallbacks(d *core.Draft, keyword string) {
	if d.Title == "" {
		d.Title = "Everything You Need to Know About " + cases.Title(language.English).String(strings.TrimSpace(keyword))
	}
	if d.Excerpt == "" && d.Body != "" {
		d.Excerpt = textutil.Truncate(strings.Join(strings.Fields(textutil.PlainText(d.Body)), " "), excerptFallbackRunes) + "..."
	}
	if d.MetaDescription == "" {
		d.MetaDescription = textutil.Truncate(d.Excerpt, metaDescriptionRunes)
	}
	if d.MetaKeywords == "" {
		d.MetaKeywords = strings.TrimSpace(keyword)
	}
}

func singleLine(lines []string) string {
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			return s
		}
	}
	return ""
}

// joinBody trims blank and separator lines from both ends.
func joinBody(lines []string) string {
	start, end := 0, len(lines)
	for start < end && isFiller(lines[start]) {
		start++
	}
	for end > start && isFiller(lines[end-1]) {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

func isFiller(line string) bool {
	return strings.TrimSpace(line) == "" || separatorPattern.MatchString(line)
}

func cleanTitle(t string) string {
	t = strings.TrimSpace(strings.TrimLeft(t, "# "))
	t = strings.Trim(t, `*"'`)
	return strings.TrimSpace(t)
}
