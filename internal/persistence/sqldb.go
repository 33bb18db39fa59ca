package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blogwire/internal/core"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SQLDB implements Database on top of sqlx for PostgreSQL and SQLite.
// Queries are written with ? placeholders and rebound for the active driver.
type SQLDB struct {
	db       *sqlx.DB
	articles ArticleRepository
	topics   TopicRepository
	links    AffiliateLinkRepository
	locks    RunLockRepository
}

// Open connects to driver/dsn and verifies the connection.
func Open(driver, dsn string, opts Options) (*SQLDB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000&_foreign_keys=on"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY on concurrent writes from one process.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLDB(db), nil
}

// NewSQLDB wraps an existing connection. The driver name of db selects the dialect.
func NewSQLDB(db *sqlx.DB) *SQLDB {
	return &SQLDB{
		db:       db,
		articles: &articleRepo{q: db},
		topics:   &topicRepo{q: db},
		links:    &affiliateRepo{q: db},
		locks:    &runLockRepo{q: db},
	}
}

func (s *SQLDB) Articles() ArticleRepository             { return s.articles }
func (s *SQLDB) Topics() TopicRepository                 { return s.topics }
func (s *SQLDB) AffiliateLinks() AffiliateLinkRepository { return s.links }
func (s *SQLDB) RunLocks() RunLockRepository             { return s.locks }

// DriverName reports the active dialect.
func (s *SQLDB) DriverName() string { return s.db.DriverName() }

func (s *SQLDB) Close() error {
	return s.db.Close()
}

func (s *SQLDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w: %w", core.ErrStorage, err)
	}
	return &sqlTx{
		tx:       tx,
		articles: &articleRepo{q: tx},
		topics:   &topicRepo{q: tx},
		links:    &affiliateRepo{q: tx},
	}, nil
}

// sqlTx implements Transaction
type sqlTx struct {
	tx       *sqlx.Tx
	articles ArticleRepository
	topics   TopicRepository
	links    AffiliateLinkRepository
}

func (t *sqlTx) Commit() error                           { return t.tx.Commit() }
func (t *sqlTx) Rollback() error                         { return t.tx.Rollback() }
func (t *sqlTx) Articles() ArticleRepository             { return t.articles }
func (t *sqlTx) Topics() TopicRepository                 { return t.topics }
func (t *sqlTx) AffiliateLinks() AffiliateLinkRepository { return t.links }

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
}

func storageErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// expectOneRow turns an update that matched nothing into ErrNotFound.
func expectOneRow(op string, res sql.Result, err error) error {
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

func applyListOptions(query string, args []interface{}, opts ListOptions) (string, []interface{}) {
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}
	return query, args
}

func now() time.Time {
	return time.Now().UTC()
}
