// Package runlock provides the advisory lock that keeps publication cycles from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"blogwire/internal/config"
	"blogwire/internal/core"
	"blogwire/internal/persistence"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block later cycles.
const DefaultTTL = 2 * time.Hour

// ErrNotHeld is returned when releasing a lock that expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires named leases.
type Locker interface {
	// Acquire takes the lock or fails with core.ErrLocked when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// NewFromConfig selects the lock backend. The database backend needs db.
func NewFromConfig(ctx context.Context, cfg config.Lock, db persistence.Database) (Locker, error) {
	switch cfg.Backend {
	case "", "database":
		if db == nil {
			return nil, fmt.Errorf("database lock backend needs a database")
		}
		return NewDatabaseLock(db.RunLocks()), nil
	case "redis":
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisLock(client), nil
	case "none":
		return NoopLock{}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

func newToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "blogwire"
	}
	return host + "/" + uuid.NewString()
}

// RedisLock stores leases as keys written with SET NX PX.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisLock) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisLock creates a Redis-backed Locker.
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, prefix: "blogwire:lock:"}
}

// Acquire implements Locker.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := l.prefix + name
	token := newToken()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", name, core.ErrLocked)
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// DatabaseLock stores leases in the run_locks table. Expired rows are taken over.
type DatabaseLock struct {
	repo persistence.RunLockRepository
	now  func() time.Time
}

// NewDatabaseLock creates a Locker on the run lock repository.
func NewDatabaseLock(repo persistence.RunLockRepository) *DatabaseLock {
	return &DatabaseLock{repo: repo, now: time.Now}
}

// Acquire implements Locker.
func (l *DatabaseLock) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	holder := newToken()
	now := l.now()

	ok, err := l.repo.TryAcquire(ctx, name, holder, now, now.Add(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", name, core.ErrLocked)
	}
	return &dbLease{repo: l.repo, name: name, holder: holder}, nil
}

type dbLease struct {
	repo   persistence.RunLockRepository
	name   string
	holder string
}

func (d *dbLease) Release(ctx context.Context) error {
	return d.repo.Release(ctx, d.name, d.holder)
}

// NoopLock never blocks.
type NoopLock struct{}

// Acquire implements Locker.
func (NoopLock) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }
