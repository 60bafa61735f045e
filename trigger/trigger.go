// Package trigger computes next-fire times from standard 5-field cron
// expressions, optionally bounded by an end time.
//
// Triggers are pure values: computing one has no side effects, and the
// same inputs always produce the same fire sequence. The caller supplies
// the evaluation timezone explicitly; nothing here consults the host
// environment.
package trigger

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/cronsync"
)

// parser accepts standard 5-field cron expressions
// (minute, hour, day-of-month, month, day-of-week).
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Trigger maps a point in time to the next matching fire time of a cron
// expression. Immutable and safe for concurrent use.
type Trigger struct {
	expr     string
	schedule cronlib.Schedule
	endTime  *time.Time
	loc      *time.Location
}

// Compute parses expr and returns a Trigger evaluated in loc (UTC when
// nil). endTime, when non-nil, bounds the fire sequence inclusively: the
// trigger yields no fire time later than it. Returns an error wrapping
// cronsync.ErrInvalidExpression on malformed input.
func Compute(expr string, endTime *time.Time, loc *time.Location) (*Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", cronsync.ErrInvalidExpression, expr, err)
	}
	var end *time.Time
	if endTime != nil {
		e := *endTime
		end = &e
	}
	return &Trigger{
		expr:     expr,
		schedule: schedule,
		endTime:  end,
		loc:      loc,
	}, nil
}

// Expression returns the cron expression the trigger was computed from.
func (tr *Trigger) Expression() string {
	return tr.expr
}

// EndTime returns a copy of the trigger's end time, or nil if unbounded.
func (tr *Trigger) EndTime() *time.Time {
	if tr.endTime == nil {
		return nil
	}
	e := *tr.endTime
	return &e
}

// NextFireAfter returns the earliest matching time strictly after t, or
// nil when the end time has passed or no match exists within the
// schedule's search horizon.
func (tr *Trigger) NextFireAfter(t time.Time) *time.Time {
	next := tr.schedule.Next(t.In(tr.loc))
	if next.IsZero() {
		return nil
	}
	if tr.endTime != nil && next.After(*tr.endTime) {
		return nil
	}
	return &next
}
