package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/backoff"
	"github.com/xraph/cronsync/index"
	"github.com/xraph/cronsync/index/memory"
	"github.com/xraph/cronsync/index/postgres"
	"github.com/xraph/cronsync/index/sqlite"
)

// SelectStore picks the index backend from cfg.DatabaseURI. An empty URI
// selects the in-memory store outright. A malformed URI, an unsupported
// scheme, or an unreachable database logs a warning and falls back to the
// in-memory store so the process still comes up, in degraded mode. Any
// other failure — notably a migration error against a reachable database —
// propagates, since falling back would hide real damage.
//
// SelectStore is a one-time startup step; it is not safe to race with
// itself.
func SelectStore(ctx context.Context, cfg cronsync.Config, logger *slog.Logger) (index.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	uri := cronsync.NormalizeDatabaseURI(cfg.DatabaseURI)
	if uri == "" {
		logger.Info("no database uri configured, using in-memory index")
		return memory.New(), nil
	}

	store, err := openDurable(ctx, uri, cfg, logger)
	if err == nil {
		return store, nil
	}
	if errors.Is(err, cronsync.ErrBackendUnavailable) || errors.Is(err, cronsync.ErrUnsupportedDriver) {
		logger.Warn("durable index backend unavailable, falling back to in-memory index",
			slog.String("error", err.Error()),
		)
		return memory.New(), nil
	}
	return nil, err
}

func openDurable(ctx context.Context, uri string, cfg cronsync.Config, logger *slog.Logger) (index.Store, error) {
	switch {
	case strings.HasPrefix(uri, "postgresql://"):
		return openPostgres(ctx, uri, cfg, logger)
	case strings.HasPrefix(uri, "sqlite:"):
		return openSQLite(ctx, uri, cfg, logger)
	default:
		return nil, fmt.Errorf("cronsync/engine: %w: %q", cronsync.ErrUnsupportedDriver, uri)
	}
}

func openPostgres(ctx context.Context, uri string, cfg cronsync.Config, logger *slog.Logger) (index.Store, error) {
	store, err := postgres.New(ctx, uri, storeOptionsPostgres(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("cronsync/engine: open postgres: %w: %v", cronsync.ErrBackendUnavailable, err)
	}
	if err := pingWithTimeout(ctx, store, cfg.AttemptTimeout); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("cronsync/engine: ping postgres: %w: %v", cronsync.ErrBackendUnavailable, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("cronsync/engine: migrate postgres: %w", err)
	}
	logger.Info("using postgres index backend")
	return store, nil
}

func openSQLite(ctx context.Context, uri string, cfg cronsync.Config, logger *slog.Logger) (index.Store, error) {
	path := sqlitePath(uri)
	if path == "" {
		return nil, fmt.Errorf("cronsync/engine: open sqlite: %w: empty path in %q", cronsync.ErrBackendUnavailable, uri)
	}
	store, err := sqlite.New(path, storeOptionsSQLite(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("cronsync/engine: open sqlite: %w: %v", cronsync.ErrBackendUnavailable, err)
	}
	if err := pingWithTimeout(ctx, store, cfg.AttemptTimeout); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("cronsync/engine: ping sqlite: %w: %v", cronsync.ErrBackendUnavailable, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("cronsync/engine: migrate sqlite: %w", err)
	}
	logger.Info("using sqlite index backend", slog.String("path", path))
	return store, nil
}

// sqlitePath extracts the filesystem path (or ":memory:") from a
// sqlite: URI. Both sqlite:file.db and sqlite:///file.db forms are
// accepted.
func sqlitePath(uri string) string {
	path := strings.TrimPrefix(uri, "sqlite:")
	path = strings.TrimPrefix(path, "//")
	return path
}

func pingWithTimeout(ctx context.Context, store index.Store, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = cronsync.DefaultConfig().AttemptTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return store.Ping(pingCtx)
}

func storeOptionsPostgres(cfg cronsync.Config, logger *slog.Logger) []postgres.Option {
	opts := []postgres.Option{postgres.WithLogger(logger)}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, postgres.WithRetry(cfg.RetryAttempts, backoff.DefaultStrategy()))
	}
	if cfg.AttemptTimeout > 0 {
		opts = append(opts, postgres.WithAttemptTimeout(cfg.AttemptTimeout))
	}
	return opts
}

func storeOptionsSQLite(cfg cronsync.Config, logger *slog.Logger) []sqlite.Option {
	opts := []sqlite.Option{sqlite.WithLogger(logger)}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, sqlite.WithRetry(cfg.RetryAttempts, backoff.DefaultStrategy()))
	}
	if cfg.AttemptTimeout > 0 {
		opts = append(opts, sqlite.WithAttemptTimeout(cfg.AttemptTimeout))
	}
	return opts
}
