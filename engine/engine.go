// Package engine wires the cronsync subsystems together: it selects the
// index backend from configuration, connects the syncer to the
// scheduler's event stream, and exposes the caller-facing query service.
//
// The Engine is an explicit context object. Nothing in cronsync lives in
// package-level state; two engines with different configurations can
// coexist in one process.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/index"
	"github.com/xraph/cronsync/scheduler"
	"github.com/xraph/cronsync/syncer"
)

// Engine owns the cron index store, the scheduler client, and the
// syncer that keeps them in step.
type Engine struct {
	cfg    cronsync.Config
	logger *slog.Logger

	store   index.Store
	client  scheduler.Client
	syncer  *syncer.Syncer
	service *Service

	// ownedClient is closed on Stop when the engine created its own
	// in-process client.
	ownedClient *scheduler.InProc
	started     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger, inherited by every subsystem the
// engine creates.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClient sets the scheduler client. Without this option the engine
// runs its own in-process scheduler.
func WithClient(client scheduler.Client) Option {
	return func(e *Engine) { e.client = client }
}

// WithStore sets the index store, bypassing backend selection from
// cfg.DatabaseURI.
func WithStore(store index.Store) Option {
	return func(e *Engine) { e.store = store }
}

// New builds an Engine from cfg. The index backend is selected from
// cfg.DatabaseURI unless WithStore overrides it; selection may fall back
// to the in-memory store when the durable backend is unreachable.
func New(ctx context.Context, cfg cronsync.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("cronsync/engine: load timezone %q: %w", cfg.Timezone, err)
		}
	}

	if e.store == nil {
		store, err := SelectStore(ctx, cfg, e.logger)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	if e.client == nil {
		inproc := scheduler.NewInProc(scheduler.WithLogger(e.logger))
		e.client = inproc
		e.ownedClient = inproc
	}

	e.syncer = syncer.New(e.store, e.client, syncer.WithLogger(e.logger))
	e.service = NewService(e.store, e.client, loc, e.logger)
	return e, nil
}

// Service returns the caller-facing query/create/delete surface.
func (e *Engine) Service() *Service { return e.service }

// Store returns the selected index store.
func (e *Engine) Store() index.Store { return e.store }

// Client returns the scheduler client.
func (e *Engine) Client() scheduler.Client { return e.client }

// Start subscribes the syncer to the scheduler's event stream. Events
// published before Start are not replayed.
func (e *Engine) Start() error {
	if e.started {
		return fmt.Errorf("cronsync/engine: start: already started")
	}
	if err := e.syncer.Subscribe(e.client); err != nil {
		return err
	}
	e.started = true
	e.logger.Info("cronsync engine started")
	return nil
}

// Stop drains the syncer, closes an engine-owned scheduler client, and
// closes the store, in that order: no event is dropped mid-projection
// and nothing writes to a closed store.
func (e *Engine) Stop() error {
	e.syncer.Close()
	if e.ownedClient != nil {
		e.ownedClient.Close()
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("cronsync/engine: close store: %w", err)
	}
	e.logger.Info("cronsync engine stopped")
	return nil
}
