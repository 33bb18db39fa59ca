// Package persistence provides database abstraction interfaces for storing articles, topics and affiliate links
package persistence

import (
	"context"
	"errors"
	"time"

	"blogwire/internal/core"
)

// ErrSlugConflict is returned by ArticleRepository.Create when the slug is already used.
var ErrSlugConflict = errors.New("slug already exists")

// ArticleRepository handles article persistence operations
type ArticleRepository interface {
	// Create inserts a new article, assigning ID and timestamps when unset
	Create(ctx context.Context, article *core.Article) error

	// Get retrieves an article by ID
	Get(ctx context.Context, id string) (*core.Article, error)

	// GetBySlug retrieves an article by its slug
	GetBySlug(ctx context.Context, slug string) (*core.Article, error)

	// SlugExists reports whether any article already uses slug
	SlugExists(ctx context.Context, slug string) (bool, error)

	// List retrieves articles with pagination and filtering, newest first
	List(ctx context.Context, opts ListOptions) ([]core.Article, error)

	// ListPublishedSummaries returns the title/keyword projection of every published article
	ListPublishedSummaries(ctx context.Context) ([]core.ArticleSummary, error)

	// IncrementViews bumps view_count by one
	IncrementViews(ctx context.Context, id string) error

	// Delete removes an article by ID
	Delete(ctx context.Context, id string) error

	// DeleteEmpty removes articles with no body or zero word count
	DeleteEmpty(ctx context.Context) (int64, error)

	// Stats aggregates article counters
	Stats(ctx context.Context) (*core.ArticleStats, error)
}

// TopicRepository handles topic persistence and lifecycle transitions
type TopicRepository interface {
	// Create inserts a pending topic. Keywords are unique after normalization.
	Create(ctx context.Context, topic *core.Topic) error

	// Get retrieves a topic by ID
	Get(ctx context.Context, id string) (*core.Topic, error)

	// ExistsByKeyword reports whether a topic with the same normalized keyword exists in any status
	ExistsByKeyword(ctx context.Context, keyword string) (bool, error)

	// ListPending returns up to limit pending topics, highest trend score first,
	// then earliest discovered
	ListPending(ctx context.Context, limit int) ([]core.Topic, error)

	// Claim moves a pending topic to in_progress. It returns false when the topic
	// was no longer pending.
	Claim(ctx context.Context, id string) (bool, error)

	// Release returns an in_progress topic to pending so a later cycle picks it up
	Release(ctx context.Context, id string) error

	// Complete marks an in_progress topic completed
	Complete(ctx context.Context, id string, at time.Time) error

	// Skip marks a non-terminal topic skipped with reason
	Skip(ctx context.Context, id string, reason string, at time.Time) error

	// List retrieves topics with pagination and filtering
	List(ctx context.Context, opts ListOptions) ([]core.Topic, error)

	// Stats counts topics by status
	Stats(ctx context.Context) (*core.TopicStats, error)
}

// AffiliateLinkRepository handles affiliate link persistence operations
type AffiliateLinkRepository interface {
	// Create inserts a new link
	Create(ctx context.Context, link *core.AffiliateLink) error

	// Get retrieves a link by ID
	Get(ctx context.Context, id string) (*core.AffiliateLink, error)

	// ListActive returns active links, longest keyword first, then oldest
	ListActive(ctx context.Context) ([]core.AffiliateLink, error)

	// List retrieves all links
	List(ctx context.Context, opts ListOptions) ([]core.AffiliateLink, error)

	// SetActive toggles a link
	SetActive(ctx context.Context, id string, active bool) error

	// IncrementInsertions bumps insert_count of each link by one
	IncrementInsertions(ctx context.Context, ids []string) error

	// IncrementClicks bumps click_count by one
	IncrementClicks(ctx context.Context, id string) error
}

// RunLockRepository stores named advisory locks with an expiry
type RunLockRepository interface {
	// TryAcquire takes the lock when it is free or expired at now
	TryAcquire(ctx context.Context, name, holder string, now, expiresAt time.Time) (bool, error)

	// Release drops the lock if holder still owns it
	Release(ctx context.Context, name, holder string) error
}

// ListOptions provides common filtering and pagination options
type ListOptions struct {
	Limit  int    // Maximum number of results (0 for no limit)
	Offset int    // Number of results to skip
	Status string // Optional status filter
}

// Repositories groups the repositories that share a connection or transaction
type Repositories interface {
	Articles() ArticleRepository
	Topics() TopicRepository
	AffiliateLinks() AffiliateLinkRepository
}

// Database represents the main database interface that aggregates all repositories
type Database interface {
	Repositories

	// RunLocks returns the advisory lock repository
	RunLocks() RunLockRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	Repositories

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db Database, fn func(Repositories) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
