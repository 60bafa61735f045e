// Package syncer projects schedule lifecycle events into the cron index.
// It subscribes to the scheduler's event stream and keeps the queryable
// read model in step with the authoritative schedule registry.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
	"github.com/xraph/cronsync/scheduler"
)

// ScheduleSource fetches authoritative schedule records by id. Satisfied
// by scheduler.Client.
type ScheduleSource interface {
	GetSchedules(ctx context.Context, ids ...id.CronID) ([]*scheduler.Schedule, error)
}

// EventSource provides lifecycle-event subscriptions. Satisfied by
// scheduler.Client.
type EventSource interface {
	Subscribe(subscriberID string) (*scheduler.Subscription, error)
}

// Syncer applies Added/Updated/Removed events to an index.Store. Every
// projection is idempotent, so replays and duplicate deliveries converge
// to the same index state.
type Syncer struct {
	store     index.Store
	schedules ScheduleSource
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	sub    *scheduler.Subscription
	done   chan struct{}
	closed bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the syncer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a Syncer projecting into store, re-fetching schedule
// details from schedules.
func New(store index.Store, schedules ScheduleSource, opts ...Option) *Syncer {
	s := &Syncer{
		store:     store,
		schedules: schedules,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe attaches the syncer to src and starts consuming events in a
// background goroutine until the subscription closes or Close is called.
func (s *Syncer) Subscribe(src EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cronsync/syncer: subscribe: %w", cronsync.ErrSyncerClosed)
	}
	if s.sub != nil {
		return fmt.Errorf("cronsync/syncer: subscribe: already subscribed")
	}

	sub, err := src.Subscribe("cron-index-syncer")
	if err != nil {
		return fmt.Errorf("cronsync/syncer: subscribe: %w", err)
	}
	s.sub = sub
	s.done = make(chan struct{})

	go func(sub *scheduler.Subscription, done chan struct{}) {
		defer close(done)
		for evt := range sub.C() {
			s.Handle(context.Background(), evt)
		}
	}(sub, s.done)

	return nil
}

// Close stops consuming events and waits for the in-flight event to
// finish. Safe to call multiple times; the syncer cannot be resubscribed
// afterwards.
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub, done := s.sub, s.done
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}

// Handle applies one event to the index. It is the absorb-and-log
// boundary: projection failures are logged and swallowed so a bad event
// never kills the subscription. The index self-heals on the next event
// for the same schedule.
func (s *Syncer) Handle(ctx context.Context, evt scheduler.Event) {
	var err error
	switch e := evt.(type) {
	case scheduler.Added:
		err = s.applyAdded(ctx, e)
	case scheduler.Updated:
		err = s.applyUpdated(ctx, e)
	case scheduler.Removed:
		err = s.applyRemoved(ctx, e)
	default:
		s.logger.Warn("unknown schedule event type",
			slog.String("type", fmt.Sprintf("%T", evt)),
			slog.String("cron_id", evt.ScheduleID().String()),
		)
		return
	}
	if err != nil {
		s.logger.Error("failed to project schedule event",
			slog.String("type", fmt.Sprintf("%T", evt)),
			slog.String("cron_id", evt.ScheduleID().String()),
			slog.String("error", err.Error()),
		)
	}
}

// applyAdded re-fetches the schedule by id and upserts its index row.
// A schedule that disappeared between the event and the fetch is dropped
// with a warning; the Removed event that follows has nothing to undo.
func (s *Syncer) applyAdded(ctx context.Context, evt scheduler.Added) error {
	scheds, err := s.schedules.GetSchedules(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}
	if len(scheds) == 0 {
		s.logger.Warn("added schedule no longer exists, dropping event",
			slog.String("cron_id", evt.ID.String()),
		)
		return nil
	}
	sched := scheds[0]

	now := s.now().UTC()
	entry := &index.Entry{
		CronID:      evt.ID,
		AssistantID: sched.Metadata.AssistantID,
		ThreadID:    sched.Metadata.ThreadID,
		UserID:      sched.Metadata.UserID,
		Payload:     sched.Metadata.Payload,
		Schedule:    sched.Metadata.Schedule,
		NextRunDate: evt.NextFireTime,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    sched.Metadata.Metadata,
	}
	if entry.NextRunDate == nil {
		entry.NextRunDate = sched.NextFireTime
	}
	if sched.Trigger != nil {
		if entry.Schedule == "" {
			entry.Schedule = sched.Trigger.Expression()
		}
		entry.EndTime = sched.Trigger.EndTime()
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	s.logger.Debug("projected schedule into index",
		slog.String("cron_id", evt.ID.String()),
	)
	return nil
}

// applyUpdated refreshes the entry's next run date. An unknown id is a
// benign ordering artifact, logged at debug and otherwise ignored.
func (s *Syncer) applyUpdated(ctx context.Context, evt scheduler.Updated) error {
	rows, err := s.store.UpdateNextRun(ctx, evt.ID, evt.NextFireTime, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update next run: %w", err)
	}
	if rows == 0 {
		s.logger.Debug("update for unknown schedule, ignoring",
			slog.String("cron_id", evt.ID.String()),
		)
	}
	return nil
}

// applyRemoved deletes the entry. Deleting an unknown id is a no-op.
func (s *Syncer) applyRemoved(ctx context.Context, evt scheduler.Removed) error {
	if err := s.store.Delete(ctx, evt.ID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}
