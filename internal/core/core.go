package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ArticleStatus is the publication state of an Article.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
)

// TopicStatus is the processing state of a Topic.
// pending -> in_progress -> completed | skipped. completed and skipped are terminal.
type TopicStatus string

const (
	TopicStatusPending    TopicStatus = "pending"
	TopicStatusInProgress TopicStatus = "in_progress"
	TopicStatusCompleted  TopicStatus = "completed"
	TopicStatusSkipped    TopicStatus = "skipped"
)

// Article is a persisted, publishable piece of generated content.
type Article struct {
	ID               string        `json:"id" db:"id"`                             // Unique identifier (UUID)
	Title            string        `json:"title" db:"title"`                       // Article headline
	Slug             string        `json:"slug" db:"slug"`                         // URL slug, unique across articles
	Body             string        `json:"body" db:"body"`                         // Markdown body
	Excerpt          string        `json:"excerpt" db:"excerpt"`                   // Short teaser
	MetaDescription  string        `json:"meta_description" db:"meta_description"` // SEO description (<= 160 chars)
	MetaKeywords     string        `json:"meta_keywords" db:"meta_keywords"`       // Comma separated SEO keywords
	FeaturedImageURL string        `json:"featured_image_url" db:"featured_image_url"`
	Status           ArticleStatus `json:"status" db:"status"`
	PublishedAt      *time.Time    `json:"published_at,omitempty" db:"published_at"`
	ViewCount        int64         `json:"view_count" db:"view_count"`
	WordCount        int           `json:"word_count" db:"word_count"`
	Keyword          string        `json:"keyword" db:"keyword"`             // Keyword the article was generated from
	TopicID          *string       `json:"topic_id,omitempty" db:"topic_id"` // Originating topic, nil for ad-hoc runs
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// IsPublishable reports whether the article satisfies the minimum shape of a published record.
func (a *Article) IsPublishable() bool {
	return strings.TrimSpace(a.Title) != "" &&
		strings.TrimSpace(a.Slug) != "" &&
		strings.TrimSpace(a.Body) != "" &&
		a.WordCount > 0
}

// ArticleSummary is the projection used for duplicate detection.
type ArticleSummary struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Keyword string `json:"keyword" db:"keyword"`
	Slug    string `json:"slug" db:"slug"`
}

// Topic is a candidate keyword awaiting or having undergone article generation.
type Topic struct {
	ID           string      `json:"id" db:"id"`
	Keyword      string      `json:"keyword" db:"keyword"`
	SearchVolume int64       `json:"search_volume" db:"search_volume"`
	TrendScore   float64     `json:"trend_score" db:"trend_score"` // Relative ranking within a discovery batch
	Category     string      `json:"category" db:"category"`
	Status       TopicStatus `json:"status" db:"status"`
	SkipReason   *string     `json:"skip_reason,omitempty" db:"skip_reason"`
	DiscoveredAt time.Time   `json:"discovered_at" db:"discovered_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
}

// DiscoveredTopic is a normalized trend result before insertion into the store.
type DiscoveredTopic struct {
	Keyword      string  `json:"keyword"`
	SearchVolume int64   `json:"search_volume"`
	TrendScore   float64 `json:"trend_score"`
	Category     string  `json:"category"`
}

// AffiliateLink is a keyword-triggered monetized hyperlink.
type AffiliateLink struct {
	ID          string    `json:"id" db:"id"`
	Keyword     string    `json:"keyword" db:"keyword"` // Case-insensitive match target
	URL         string    `json:"url" db:"url"`
	Platform    string    `json:"platform" db:"platform"`
	Active      bool      `json:"active" db:"active"`
	ClickCount  int64     `json:"click_count" db:"click_count"`   // Reader clicks, tracked outside the pipeline
	InsertCount int64     `json:"insert_count" db:"insert_count"` // Times injected into an article body
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Validate requires a keyword and an absolute http(s) URL that can be used as a
// markdown link target as is.
func (l *AffiliateLink) Validate() error {
	if strings.TrimSpace(l.Keyword) == "" {
		return fmt.Errorf("affiliate link needs a keyword: %w", ErrValidation)
	}
	u, err := url.Parse(l.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("affiliate url %q is not an absolute http(s) url: %w", l.URL, ErrValidation)
	}
	if strings.ContainsAny(l.URL, " \t\r\n()<>[]") {
		return fmt.Errorf("affiliate url %q contains characters that break markdown links: %w", l.URL, ErrValidation)
	}
	return nil
}

// Draft is the parsed output of the text-generation service.
type Draft struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	Excerpt         string `json:"excerpt"`
	MetaDescription string `json:"meta_description"`
	MetaKeywords    string `json:"meta_keywords"`
	WordCount       int    `json:"word_count"`
}

// ArticleStats aggregates article counters.
type ArticleStats struct {
	Total      int   `json:"total" db:"total"`
	Published  int   `json:"published" db:"published"`
	Drafts     int   `json:"drafts" db:"drafts"`
	TotalViews int64 `json:"total_views" db:"total_views"`
}

// TopicStats aggregates topic counters by status.
type TopicStats struct {
	Total      int `json:"total" db:"total"`
	Pending    int `json:"pending" db:"pending"`
	InProgress int `json:"in_progress" db:"in_progress"`
	Completed  int `json:"completed" db:"completed"`
	Skipped    int `json:"skipped" db:"skipped"`
}
