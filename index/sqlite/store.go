// Package sqlite provides the durable index backend on SQLite using the
// pure-Go modernc.org/sqlite driver. It offers the same contract as the
// postgres backend for single-node deployments that want persistence
// without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/cronsync/backoff"
	"github.com/xraph/cronsync/index"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Ensure Store implements index.Store at compile time.
var _ index.Store = (*Store)(nil)

// Store is a SQLite implementation of index.Store.
type Store struct {
	db             *sql.DB
	logger         *slog.Logger
	retryAttempts  int
	retryStrategy  backoff.Strategy
	attemptTimeout time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(attempts int, strategy backoff.Strategy) Option {
	return func(s *Store) {
		s.retryAttempts = attempts
		s.retryStrategy = strategy
	}
}

// WithAttemptTimeout sets the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.attemptTimeout = d
	}
}

// New opens (or creates) the SQLite database at path. ":memory:" gives a
// private in-memory database, useful in tests.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cronsync/sqlite: open %q: %w", path, err)
	}

	// SQLite allows one writer at a time; a single connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	s := &Store{
		db:             db,
		logger:         slog.Default(),
		retryAttempts:  3,
		retryStrategy:  backoff.DefaultStrategy(),
		attemptTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates the schema. All statements use IF NOT EXISTS, so
// running against an existing table — or concurrently with another
// process start — is safe.
func (s *Store) Migrate(ctx context.Context) error {
	data, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("cronsync/sqlite: read migrations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("cronsync/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withRetry runs fn inside a transaction, retrying transient failures
// (busy/locked) up to the configured attempt budget.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		if attempt > 1 {
			delay := s.retryStrategy.Delay(attempt - 1)
			s.logger.Debug("retrying store operation",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		err := s.runTx(attemptCtx, fn)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if !isTransient(err) {
			return err
		}
	}
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isTransient reports whether a SQLite error is a lock/busy condition
// worth retrying. Constraint and syntax errors are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
