// Package index defines the cron read model: the entry type projected
// from scheduler schedules and the store contract its backends implement.
package index

import (
	"encoding/json"
	"time"

	"github.com/xraph/cronsync/id"
)

// Entry is one row of the cron index: the searchable projection of a
// schedule held by the external scheduler engine. Entries are created by
// the first Added event observed for a schedule, mutated by Updated
// events, and destroyed by a Removed event; nothing in this package
// initiates those transitions.
type Entry struct {
	// CronID equals the scheduler's schedule id and is the primary key.
	CronID id.CronID `json:"cron_id"`

	// AssistantID, ThreadID, and UserID are optional annotations taken
	// from the schedule's metadata. Empty means absent.
	AssistantID string `json:"assistant_id,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`

	// Payload is the opaque job input.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Schedule is the cron expression text.
	Schedule string `json:"schedule"`

	NextRunDate *time.Time `json:"next_run_date,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	// CreatedAt is set once by the first projected Added event.
	// UpdatedAt is refreshed on every projected change.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Metadata is the opaque metadata sub-map from the schedule.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	if e.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), e.Metadata...)
	}
	if e.NextRunDate != nil {
		t := *e.NextRunDate
		cp.NextRunDate = &t
	}
	if e.EndTime != nil {
		t := *e.EndTime
		cp.EndTime = &t
	}
	return &cp
}
