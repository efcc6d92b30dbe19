// Package postgres implements the balances stores on PostgreSQL.
//
// Units of work run at READ COMMITTED with explicit row locks
// (SELECT ... FOR UPDATE). Order operations lock the order row first, then
// the owner's Regular and Reserve accounts, then the company account.
// Transfers lock both Regular accounts in ascending user id order.
// Deadlocks and serialization failures roll back and are retried; every
// other error is returned on the first attempt.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/metrics"
	"github.com/mbd888/balances/internal/retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 20 * time.Millisecond
)

// Store is a PostgreSQL-backed implementation of ledger.Store,
// query.Source and revenue.Source.
type Store struct {
	db          *sql.DB
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts sets how many times a unit of work is tried when it
// fails with a deadlock or serialization conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first retry backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Store) {
		s.baseDelay = d
	}
}

// WithClock sets the clock used for account update times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store over db.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a database transaction, committing when fn returns nil.
// A deadlock or serialization failure reruns fn in a fresh transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	attempt := 0
	return retry.DoIf(ctx, s.maxAttempts, s.baseDelay, isRetryable, func() error {
		attempt++
		err := s.runTx(ctx, fn)
		if err != nil && isRetryable(err) {
			outcome := "retried"
			if attempt >= s.maxAttempts {
				outcome = "exhausted"
			}
			metrics.TxConflictsTotal.WithLabelValues(outcome).Inc()
			s.logger.Warn("transaction conflict", "attempt", attempt, "max_attempts", s.maxAttempts, "error", err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}
