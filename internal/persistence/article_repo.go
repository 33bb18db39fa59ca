package persistence

import (
	"context"
	"fmt"

	"blogwire/internal/core"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const articleColumns = `id, title, slug, body, excerpt, meta_description, meta_keywords, featured_image_url,
	status, published_at, view_count, word_count, keyword, topic_id, created_at, updated_at`

// articleRepo implements ArticleRepository
type articleRepo struct {
	q queryer
}

func (r *articleRepo) Create(ctx context.Context, article *core.Article) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	ts := now()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = ts
	}
	article.UpdatedAt = ts
	if article.Status == "" {
		article.Status = core.ArticleStatusDraft
	}

	query := r.q.Rebind(`
		INSERT INTO articles (` + articleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.q.ExecContext(ctx, query,
		article.ID, article.Title, article.Slug, article.Body, article.Excerpt,
		article.MetaDescription, article.MetaKeywords, article.FeaturedImageURL,
		article.Status, article.PublishedAt, article.ViewCount, article.WordCount,
		article.Keyword, article.TopicID, article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert article %q: %w", article.Slug, ErrSlugConflict)
		}
		return storageErr("insert article", err)
	}
	return nil
}

func (r *articleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	var article core.Article
	query := r.q.Rebind(`SELECT ` + articleColumns + ` FROM articles WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &article, query, id); err != nil {
		return nil, storageErr("get article", err)
	}
	return &article, nil
}

func (r *articleRepo) GetBySlug(ctx context.Context, slug string) (*core.Article, error) {
	var article core.Article
	query := r.q.Rebind(`SELECT ` + articleColumns + ` FROM articles WHERE slug = ?`)
	if err := sqlx.GetContext(ctx, r.q, &article, query, slug); err != nil {
		return nil, storageErr("get article by slug", err)
	}
	return &article, nil
}

func (r *articleRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int
	query := r.q.Rebind(`SELECT COUNT(*) FROM articles WHERE slug = ?`)
	if err := sqlx.GetContext(ctx, r.q, &count, query, slug); err != nil {
		return false, storageErr("check slug", err)
	}
	return count > 0, nil
}

func (r *articleRepo) List(ctx context.Context, opts ListOptions) ([]core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	var args []interface{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY created_at DESC, id`
	query, args = applyListOptions(query, args, opts)

	articles := []core.Article{}
	if err := sqlx.SelectContext(ctx, r.q, &articles, r.q.Rebind(query), args...); err != nil {
		return nil, storageErr("list articles", err)
	}
	return articles, nil
}

func (r *articleRepo) ListPublishedSummaries(ctx context.Context) ([]core.ArticleSummary, error) {
	summaries := []core.ArticleSummary{}
	query := r.q.Rebind(`SELECT id, title, keyword, slug FROM articles WHERE status = ? ORDER BY created_at`)
	if err := sqlx.SelectContext(ctx, r.q, &summaries, query, core.ArticleStatusPublished); err != nil {
		return nil, storageErr("list article summaries", err)
	}
	return summaries, nil
}

func (r *articleRepo) IncrementViews(ctx context.Context, id string) error {
	query := r.q.Rebind(`UPDATE articles SET view_count = view_count + 1 WHERE id = ?`)
	res, err := r.q.ExecContext(ctx, query, id)
	return expectOneRow("increment views", res, err)
}

func (r *articleRepo) Delete(ctx context.Context, id string) error {
	query := r.q.Rebind(`DELETE FROM articles WHERE id = ?`)
	res, err := r.q.ExecContext(ctx, query, id)
	return expectOneRow("delete article", res, err)
}

func (r *articleRepo) DeleteEmpty(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM articles WHERE word_count = 0 OR TRIM(body) = ''`)
	if err != nil {
		return 0, storageErr("delete empty articles", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete empty articles", err)
	}
	return n, nil
}

func (r *articleRepo) Stats(ctx context.Context) (*core.ArticleStats, error) {
	var stats core.ArticleStats
	query := r.q.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS published,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS drafts,
		       COALESCE(SUM(view_count), 0) AS total_views
		FROM articles`)
	if err := sqlx.GetContext(ctx, r.q, &stats, query, core.ArticleStatusPublished, core.ArticleStatusDraft); err != nil {
		return nil, storageErr("article stats", err)
	}
	return &stats, nil
}
