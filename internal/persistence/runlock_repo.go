package persistence

import (
	"context"
	"time"
)

// runLockRepo implements RunLockRepository with a single upsert that only
// overwrites an existing row once it has expired.
type runLockRepo struct {
	q queryer
}

func (r *runLockRepo) TryAcquire(ctx context.Context, name, holder string, now, expiresAt time.Time) (bool, error) {
	query := r.q.Rebind(`
		INSERT INTO run_locks (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE run_locks.expires_at < ?`)
	res, err := r.q.ExecContext(ctx, query, name, holder, now.UTC(), expiresAt.UTC(), now.UTC())
	if err != nil {
		return false, storageErr("acquire run lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("acquire run lock", err)
	}
	return n == 1, nil
}

func (r *runLockRepo) Release(ctx context.Context, name, holder string) error {
	query := r.q.Rebind(`DELETE FROM run_locks WHERE name = ? AND holder = ?`)
	if _, err := r.q.ExecContext(ctx, query, name, holder); err != nil {
		return storageErr("release run lock", err)
	}
	return nil
}
