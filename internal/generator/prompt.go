package generator

import (
	"fmt"
	"strings"
)

// SystemPersona is prepended to every article prompt.
const SystemPersona = `You are %s, a real person who writes authentic, conversational blog posts. You write like you talk, naturally and without corporate jargon or AI-sounding phrases. Every post has a distinct voice and structure.`

// ArticlePromptTemplate asks for labelled sections that parseResponse understands.
// Arguments: keyword, min words, max words, author, author, min words, max words.
const ArticlePromptTemplate = `Write a comprehensive, SEO-optimized blog post about: "%s"

Requirements:
- Word count: %d-%d words (IMPORTANT: the content must be substantial and meet this requirement)
- Tone: natural and conversational, first-person perspective
- Include relevant headers (H2, H3) for readability
- Naturally incorporate long-tail search phrases people actually use
- Add real value with actionable insights and examples
- End with a signature: "- %s"

Avoid these AI writing tells: "delve into", "it's important to note", "landscape", "robust", "leverage".
Vary the headline style. Do not start with "The Ultimate Guide to" or "Everything You Need to Know About".

Structure your response EXACTLY as follows:

TITLE: [Natural, varied title]

META_DESCRIPTION: [150-160 character meta description with the primary keyword]

META_KEYWORDS: [5-7 long-form search phrases, comma-separated]

EXCERPT: [2-3 sentence excerpt that includes the main keyword]

CONTENT:
[Full blog post in Markdown with headers, lists and formatting]

IMPORTANT:
- Sign off as %s
- Ensure the content is truly %d-%d words, no shorter!`

// BuildPrompt renders the article prompt for keyword.
func BuildPrompt(keyword string, minWords, maxWords int, author string) string {
	if author == "" {
		author = "the author"
	}
	keyword = strings.TrimSpace(keyword)
	return fmt.Sprintf(SystemPersona, author) + "\n\n" +
		fmt.Sprintf(ArticlePromptTemplate, keyword, minWords, maxWords, author, author, minWords, maxWords)
}
