package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/trigger"
)

// Ensure InProc implements Client at compile time.
var _ Client = (*InProc)(nil)

// InProc is an in-process scheduler client. It keeps schedules in memory
// and emits lifecycle events through an embedded Broker. It backs tests
// and single-process deployments that have no external scheduler.
type InProc struct {
	mu        sync.RWMutex
	schedules map[id.CronID]*Schedule

	broker *Broker
	logger *slog.Logger
	now    func() time.Time
}

// InProcOption configures an InProc client.
type InProcOption func(*InProc)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) InProcOption {
	return func(c *InProc) { c.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) InProcOption {
	return func(c *InProc) { c.now = now }
}

// NewInProc creates an in-process scheduler client.
func NewInProc(opts ...InProcOption) *InProc {
	c := &InProc{
		schedules: make(map[id.CronID]*Schedule),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.broker = NewBroker(WithBrokerLogger(c.logger))
	return c
}

// CreateSchedule registers a new schedule, computes its first fire time,
// and emits an Added event.
func (c *InProc) CreateSchedule(_ context.Context, meta Metadata, trig *trigger.Trigger) (*Schedule, error) {
	now := c.now()
	next := trig.NextFireAfter(now)

	sched := &Schedule{
		ID:           id.NewCronID(),
		Trigger:      trig,
		Metadata:     meta,
		NextFireTime: next,
	}

	c.mu.Lock()
	c.schedules[sched.ID] = sched
	c.mu.Unlock()

	if err := c.broker.Publish(Added{ID: sched.ID, NextFireTime: next}); err != nil {
		return nil, fmt.Errorf("cronsync/scheduler: create schedule: %w", err)
	}
	c.logger.Debug("schedule created",
		slog.String("cron_id", sched.ID.String()),
		slog.String("expression", trig.Expression()),
	)
	return sched.Clone(), nil
}

// RemoveSchedule unregisters the schedule and emits a Removed event.
func (c *InProc) RemoveSchedule(_ context.Context, cronID id.CronID) error {
	c.mu.Lock()
	_, ok := c.schedules[cronID]
	if ok {
		delete(c.schedules, cronID)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("cronsync/scheduler: remove schedule %s: %w", cronID, cronsync.ErrScheduleNotFound)
	}
	if err := c.broker.Publish(Removed{ID: cronID}); err != nil {
		return fmt.Errorf("cronsync/scheduler: remove schedule: %w", err)
	}
	return nil
}

// GetSchedules returns the subset of the requested schedules that still
// exist, as deep copies.
func (c *InProc) GetSchedules(_ context.Context, ids ...id.CronID) ([]*Schedule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Schedule, 0, len(ids))
	for _, cronID := range ids {
		if sched, ok := c.schedules[cronID]; ok {
			out = append(out, sched.Clone())
		}
	}
	return out, nil
}

// Subscribe registers a lifecycle-event subscription.
func (c *InProc) Subscribe(subscriberID string) (*Subscription, error) {
	return c.broker.Subscribe(subscriberID)
}

// Fire simulates the schedule firing: the next fire time is recomputed,
// and the schedule emits Updated — or is removed once its end time has
// passed, mirroring how the external scheduler retires exhausted
// schedules.
func (c *InProc) Fire(ctx context.Context, cronID id.CronID) error {
	c.mu.Lock()
	sched, ok := c.schedules[cronID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("cronsync/scheduler: fire %s: %w", cronID, cronsync.ErrScheduleNotFound)
	}
	next := sched.Trigger.NextFireAfter(c.now())
	if next == nil {
		delete(c.schedules, cronID)
	} else {
		sched.NextFireTime = next
	}
	c.mu.Unlock()

	if next == nil {
		return c.RemoveScheduleIfExists(ctx, cronID)
	}
	if err := c.broker.Publish(Updated{ID: cronID, NextFireTime: next}); err != nil {
		return fmt.Errorf("cronsync/scheduler: fire: %w", err)
	}
	return nil
}

// RemoveScheduleIfExists is RemoveSchedule without the not-found error,
// for paths where the schedule may already be gone.
func (c *InProc) RemoveScheduleIfExists(_ context.Context, cronID id.CronID) error {
	c.mu.Lock()
	delete(c.schedules, cronID)
	c.mu.Unlock()

	if err := c.broker.Publish(Removed{ID: cronID}); err != nil {
		return fmt.Errorf("cronsync/scheduler: remove schedule: %w", err)
	}
	return nil
}

// Close shuts down the broker and all subscriptions.
func (c *InProc) Close() {
	c.broker.Close()
}
