package persistence

import (
	"context"
	"fmt"
	"strings"

	"blogwire/internal/core"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const affiliateColumns = `id, keyword, url, platform, active, click_count, insert_count, created_at, updated_at`

// affiliateRepo implements AffiliateLinkRepository
type affiliateRepo struct {
	q queryer
}

func (r *affiliateRepo) Create(ctx context.Context, link *core.AffiliateLink) error {
	link.Keyword = strings.TrimSpace(link.Keyword)
	link.URL = strings.TrimSpace(link.URL)
	if err := link.Validate(); err != nil {
		return err
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	ts := now()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = ts
	}
	link.UpdatedAt = ts

	query := r.q.Rebind(`
		INSERT INTO affiliate_links (` + affiliateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.q.ExecContext(ctx, query,
		link.ID, link.Keyword, link.URL, link.Platform, link.Active,
		link.ClickCount, link.InsertCount, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return storageErr("insert affiliate link", err)
	}
	return nil
}

func (r *affiliateRepo) Get(ctx context.Context, id string) (*core.AffiliateLink, error) {
	var link core.AffiliateLink
	query := r.q.Rebind(`SELECT ` + affiliateColumns + ` FROM affiliate_links WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &link, query, id); err != nil {
		return nil, storageErr("get affiliate link", err)
	}
	return &link, nil
}

func (r *affiliateRepo) ListActive(ctx context.Context) ([]core.AffiliateLink, error) {
	links := []core.AffiliateLink{}
	query := r.q.Rebind(`SELECT ` + affiliateColumns + ` FROM affiliate_links
		WHERE active = ? ORDER BY LENGTH(keyword) DESC, created_at ASC, id ASC`)
	if err := sqlx.SelectContext(ctx, r.q, &links, query, true); err != nil {
		return nil, storageErr("list active affiliate links", err)
	}
	return links, nil
}

func (r *affiliateRepo) List(ctx context.Context, opts ListOptions) ([]core.AffiliateLink, error) {
	query := `SELECT ` + affiliateColumns + ` FROM affiliate_links ORDER BY created_at ASC, id ASC`
	query, args := applyListOptions(query, nil, opts)

	links := []core.AffiliateLink{}
	if err := sqlx.SelectContext(ctx, r.q, &links, r.q.Rebind(query), args...); err != nil {
		return nil, storageErr("list affiliate links", err)
	}
	return links, nil
}

func (r *affiliateRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := r.q.Rebind(`UPDATE affiliate_links SET active = ?, updated_at = ? WHERE id = ?`)
	res, err := r.q.ExecContext(ctx, query, active, now(), id)
	return expectOneRow("toggle affiliate link", res, err)
}

func (r *affiliateRepo) IncrementInsertions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE affiliate_links SET insert_count = insert_count + 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build insertion update: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		return storageErr("increment affiliate insertions", err)
	}
	return nil
}

func (r *affiliateRepo) IncrementClicks(ctx context.Context, id string) error {
	query := r.q.Rebind(`UPDATE affiliate_links SET click_count = click_count + 1 WHERE id = ?`)
	res, err := r.q.ExecContext(ctx, query, id)
	return expectOneRow("increment affiliate clicks", res, err)
}
