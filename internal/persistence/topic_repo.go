package persistence

import (
	"context"
	"fmt"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/textutil"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const topicColumns = `id, keyword, search_volume, trend_score, category, status, skip_reason, discovered_at, processed_at`

// topicRepo implements TopicRepository
type topicRepo struct {
	q queryer
}

func (r *topicRepo) Create(ctx context.Context, topic *core.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	if topic.Status == "" {
		topic.Status = core.TopicStatusPending
	}
	if topic.DiscoveredAt.IsZero() {
		topic.DiscoveredAt = now()
	}

	query := r.q.Rebind(`
		INSERT INTO topics (id, keyword, keyword_norm, search_volume, trend_score, category, status, skip_reason, discovered_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.q.ExecContext(ctx, query,
		topic.ID, topic.Keyword, textutil.NormalizeKeyword(topic.Keyword),
		topic.SearchVolume, topic.TrendScore, topic.Category, topic.Status,
		topic.SkipReason, topic.DiscoveredAt, topic.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert topic %q: %w", topic.Keyword, core.ErrDuplicate)
		}
		return storageErr("insert topic", err)
	}
	return nil
}

func (r *topicRepo) Get(ctx context.Context, id string) (*core.Topic, error) {
	var topic core.Topic
	query := r.q.Rebind(`SELECT ` + topicColumns + ` FROM topics WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &topic, query, id); err != nil {
		return nil, storageErr("get topic", err)
	}
	return &topic, nil
}

func (r *topicRepo) ExistsByKeyword(ctx context.Context, keyword string) (bool, error) {
	var count int
	query := r.q.Rebind(`SELECT COUNT(*) FROM topics WHERE keyword_norm = ?`)
	if err := sqlx.GetContext(ctx, r.q, &count, query, textutil.NormalizeKeyword(keyword)); err != nil {
		return false, storageErr("check topic keyword", err)
	}
	return count > 0, nil
}

func (r *topicRepo) ListPending(ctx context.Context, limit int) ([]core.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE status = ?
		ORDER BY trend_score DESC, discovered_at ASC, id ASC`
	query, args := applyListOptions(query, []interface{}{core.TopicStatusPending}, ListOptions{Limit: limit})

	topics := []core.Topic{}
	if err := sqlx.SelectContext(ctx, r.q, &topics, r.q.Rebind(query), args...); err != nil {
		return nil, storageErr("list pending topics", err)
	}
	return topics, nil
}

func (r *topicRepo) Claim(ctx context.Context, id string) (bool, error) {
	query := r.q.Rebind(`UPDATE topics SET status = ? WHERE id = ? AND status = ?`)
	res, err := r.q.ExecContext(ctx, query, core.TopicStatusInProgress, id, core.TopicStatusPending)
	if err != nil {
		return false, storageErr("claim topic", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("claim topic", err)
	}
	return n == 1, nil
}

func (r *topicRepo) Release(ctx context.Context, id string) error {
	query := r.q.Rebind(`UPDATE topics SET status = ? WHERE id = ? AND status = ?`)
	res, err := r.q.ExecContext(ctx, query, core.TopicStatusPending, id, core.TopicStatusInProgress)
	return expectOneRow("release topic", res, err)
}

func (r *topicRepo) Complete(ctx context.Context, id string, at time.Time) error {
	query := r.q.Rebind(`UPDATE topics SET status = ?, processed_at = ?, skip_reason = NULL
		WHERE id = ? AND status = ?`)
	res, err := r.q.ExecContext(ctx, query, core.TopicStatusCompleted, at.UTC(), id, core.TopicStatusInProgress)
	return expectOneRow("complete topic", res, err)
}

func (r *topicRepo) Skip(ctx context.Context, id string, reason string, at time.Time) error {
	query := r.q.Rebind(`UPDATE topics SET status = ?, processed_at = ?, skip_reason = ?
		WHERE id = ? AND status IN (?, ?)`)
	res, err := r.q.ExecContext(ctx, query, core.TopicStatusSkipped, at.UTC(), reason, id,
		core.TopicStatusPending, core.TopicStatusInProgress)
	return expectOneRow("skip topic", res, err)
}

func (r *topicRepo) List(ctx context.Context, opts ListOptions) ([]core.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics`
	var args []interface{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY discovered_at DESC, id`
	query, args = applyListOptions(query, args, opts)

	topics := []core.Topic{}
	if err := sqlx.SelectContext(ctx, r.q, &topics, r.q.Rebind(query), args...); err != nil {
		return nil, storageErr("list topics", err)
	}
	return topics, nil
}

func (r *topicRepo) Stats(ctx context.Context) (*core.TopicStats, error) {
	var stats core.TopicStats
	query := r.q.Rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS in_progress,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS skipped
		FROM topics`)
	err := sqlx.GetContext(ctx, r.q, &stats, query,
		core.TopicStatusPending, core.TopicStatusInProgress, core.TopicStatusCompleted, core.TopicStatusSkipped)
	if err != nil {
		return nil, storageErr("topic stats", err)
	}
	return &stats, nil
}
