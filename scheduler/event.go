package scheduler

import (
	"time"

	"github.com/xraph/cronsync/id"
)

// Event is a schedule lifecycle notification. It is a sealed sum type:
// the only implementations are Added, Updated, and Removed, so consumers
// can type-switch over all variants and treat anything else as a
// programming error rather than silently ignoring it.
type Event interface {
	// ScheduleID identifies the schedule the event is about.
	ScheduleID() id.CronID

	isEvent()
}

// Added announces a newly registered schedule. The full schedule record
// is intentionally not carried on the event; consumers re-fetch it by id
// so they always project the authoritative state.
type Added struct {
	ID           id.CronID
	NextFireTime *time.Time
}

// Updated announces a recomputed next fire time, typically after the
// schedule fired.
type Updated struct {
	ID           id.CronID
	NextFireTime *time.Time
}

// Removed announces that a schedule no longer exists.
type Removed struct {
	ID id.CronID
}

func (e Added) ScheduleID() id.CronID   { return e.ID }
func (e Updated) ScheduleID() id.CronID { return e.ID }
func (e Removed) ScheduleID() id.CronID { return e.ID }

func (Added) isEvent()   {}
func (Updated) isEvent() {}
func (Removed) isEvent() {}
