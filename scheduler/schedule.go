// Package scheduler defines the boundary to the external scheduling
// collaborator: the authoritative Schedule record, the lifecycle Event
// types it emits, the Client contract for talking to it, and an
// in-process implementation used in tests and broker-less deployments.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/trigger"
)

// Metadata is the application payload attached to a schedule. Every
// field is optional; absent fields project to zero values in the index.
type Metadata struct {
	AssistantID string          `json:"assistant_id,omitempty"`
	ThreadID    string          `json:"thread_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Schedule    string          `json:"schedule,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Schedule is the collaborator's authoritative record for one cron job.
type Schedule struct {
	ID           id.CronID
	Trigger      *trigger.Trigger
	Metadata     Metadata
	NextFireTime *time.Time
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := *s
	if s.NextFireTime != nil {
		t := *s.NextFireTime
		out.NextFireTime = &t
	}
	if s.Metadata.Payload != nil {
		out.Metadata.Payload = append(json.RawMessage(nil), s.Metadata.Payload...)
	}
	if s.Metadata.Metadata != nil {
		out.Metadata.Metadata = append(json.RawMessage(nil), s.Metadata.Metadata...)
	}
	return &out
}

// Client is the contract with the external scheduling collaborator.
type Client interface {
	// CreateSchedule registers a new schedule and emits an Added event.
	CreateSchedule(ctx context.Context, meta Metadata, trig *trigger.Trigger) (*Schedule, error)

	// RemoveSchedule unregisters the schedule and emits a Removed event.
	// Returns cronsync.ErrScheduleNotFound when the id is unknown.
	RemoveSchedule(ctx context.Context, cronID id.CronID) error

	// GetSchedules fetches schedules by id. Ids with no matching
	// schedule are silently absent from the result; callers decide
	// whether a miss matters.
	GetSchedules(ctx context.Context, ids ...id.CronID) ([]*Schedule, error)

	// Subscribe registers a lifecycle-event subscription under the
	// given id. The returned subscription must be closed when done.
	Subscribe(subscriberID string) (*Subscription, error)
}
