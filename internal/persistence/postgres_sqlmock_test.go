package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"blogwire/internal/core"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*SQLDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLDB(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresClaimUsesNumberedPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE topics SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs("in_progress", "topic-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := db.Topics().Claim(context.Background(), "topic-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimLostRace(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE topics SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := db.Topics().Claim(context.Background(), "topic-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresTopicUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO topics`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := db.Topics().Create(context.Background(), &core.Topic{Keyword: "ai"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicate))
}

func TestPostgresArticleSlugConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO articles`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := db.Articles().Create(context.Background(), &core.Article{Title: "A", Slug: "a", Body: "b"})
	assert.ErrorIs(t, err, ErrSlugConflict)
}

func TestPostgresStorageErrorWrapped(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM topics WHERE keyword_norm = \$1`).
		WithArgs("electric cars").
		WillReturnError(errors.New("connection reset"))

	_, err := db.Topics().ExistsByKeyword(context.Background(), "Electric  Cars")
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestPostgresRunLockAcquire(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO run_locks .* ON CONFLICT \(name\) DO UPDATE .* WHERE run_locks.expires_at < \$5`).
		WithArgs("cycle", "host-1", now, now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := db.RunLocks().TryAcquire(context.Background(), "cycle", "host-1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionCommit(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE topics SET status = \$1, processed_at = \$2, skip_reason = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(r Repositories) error {
		return r.Topics().Complete(context.Background(), "topic-1", time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionRollbackOnMissingTopic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE topics SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := WithTx(context.Background(), db, func(r Repositories) error {
		return r.Topics().Complete(context.Background(), "topic-1", time.Now())
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
