package index

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/id"
)

// SortField names an Entry column query results may be ordered by.
type SortField string

// The sort field allow-list. Anything else is rejected with
// cronsync.ErrInvalidSortField by every backend and by the query service.
const (
	SortByCronID      SortField = "cron_id"
	SortByAssistantID SortField = "assistant_id"
	SortByThreadID    SortField = "thread_id"
	SortByNextRunDate SortField = "next_run_date"
	SortByEndTime     SortField = "end_time"
	SortByCreatedAt   SortField = "created_at"
	SortByUpdatedAt   SortField = "updated_at"
)

var sortFields = map[SortField]struct{}{
	SortByCronID:      {},
	SortByAssistantID: {},
	SortByThreadID:    {},
	SortByNextRunDate: {},
	SortByEndTime:     {},
	SortByCreatedAt:   {},
	SortByUpdatedAt:   {},
}

// ParseSortField validates s against the allow-list.
func ParseSortField(s string) (SortField, error) {
	f := SortField(s)
	if _, ok := sortFields[f]; !ok {
		return "", fmt.Errorf("%w: %q", cronsync.ErrInvalidSortField, s)
	}
	return f, nil
}

// SortOrder is the result ordering direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder validates s as a sort order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortAsc, SortDesc:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", cronsync.ErrInvalidSortOrder, s)
	}
}

// Filter narrows a query by equality on optional entry fields. The zero
// value matches everything: an empty field is unconstrained, never a
// "match null" predicate.
type Filter struct {
	AssistantID string
	ThreadID    string
}

// Pagination bounds.
const (
	MinLimit     = 1
	MaxLimit     = 1000
	DefaultLimit = 10
)

// Query bundles filter, sort, and pagination parameters for Store.Query.
type Query struct {
	Filter Filter
	SortBy SortField
	Order  SortOrder
	Limit  int
	Offset int
}

// DefaultQuery returns the default search parameters: newest first,
// ten per page.
func DefaultQuery() Query {
	return Query{
		SortBy: SortByCreatedAt,
		Order:  SortDesc,
		Limit:  DefaultLimit,
	}
}

// Validate checks the query against the sort allow-list and pagination
// bounds.
func (q Query) Validate() error {
	if _, ok := sortFields[q.SortBy]; !ok {
		return fmt.Errorf("%w: %q", cronsync.ErrInvalidSortField, q.SortBy)
	}
	if q.Order != SortAsc && q.Order != SortDesc {
		return fmt.Errorf("%w: %q", cronsync.ErrInvalidSortOrder, q.Order)
	}
	if q.Limit < MinLimit || q.Limit > MaxLimit {
		return fmt.Errorf("%w: %d not in [%d,%d]", cronsync.ErrInvalidLimit, q.Limit, MinLimit, MaxLimit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: %d", cronsync.ErrInvalidOffset, q.Offset)
	}
	return nil
}

// Store is the persistence contract for the cron index. Every operation
// is safe to retry: writes key on the primary key, deletes are
// idempotent, and partial updates report affected rows instead of
// failing when the row is missing.
type Store interface {
	// Upsert inserts or fully overwrites the row keyed by entry.CronID.
	// An existing row keeps its CreatedAt so the field is set exactly
	// once per entry lifetime.
	Upsert(ctx context.Context, entry *Entry) error

	// UpdateNextRun sets next_run_date and updated_at for the given id
	// and returns the number of rows affected. Zero rows is not an
	// error; the entry may simply not exist yet (or anymore).
	UpdateNextRun(ctx context.Context, cronID id.CronID, nextRun *time.Time, updatedAt time.Time) (int64, error)

	// Delete removes the row keyed by cronID. Deleting a missing id
	// succeeds with no effect.
	Delete(ctx context.Context, cronID id.CronID) error

	// Query returns entries matching q.Filter in the requested order.
	// The ordering is total; how ties are broken is backend-specific
	// but stable for a fixed data set, so pages concatenate without
	// gaps or duplicates.
	Query(ctx context.Context, q Query) ([]*Entry, error)

	// Migrate prepares backing storage. Idempotent; a no-op for the
	// in-memory backend.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
