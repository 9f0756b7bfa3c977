// Package pg implements the credential and audit stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gestix.app/internal/audit"
	"gestix.app/internal/auth"
)

var (
	_ auth.AccountStore = (*Store)(nil)
	_ audit.Store       = (*Store)(nil)
)

var errNoDB = errors.New("database connection unavailable")

type Store struct {
	db *sql.DB
}

// PoolConfig tunes the database/sql pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(orDefault(pool.MaxOpenConns, 20))
	db.SetMaxIdleConns(orDefault(pool.MaxIdleConns, 10))
	db.SetConnMaxLifetime(orDefaultDuration(pool.ConnMaxLifetime, 15*time.Minute))
	db.SetConnMaxIdleTime(orDefaultDuration(pool.ConnMaxIdleTime, 5*time.Minute))
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
