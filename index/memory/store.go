// Package memory provides the ephemeral index backend: an in-process map
// guarded by a mutex. It is the degraded mode selected when no durable
// database is configured or reachable — entries do not survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
)

// Ensure Store implements index.Store at compile time.
var _ index.Store = (*Store)(nil)

// record pairs an entry with its insertion sequence number, which breaks
// ordering ties so pagination is stable.
type record struct {
	entry *index.Entry
	seq   uint64
}

// Store is a fully in-memory implementation of index.Store.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[id.CronID]*record
	nextSeq uint64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		entries: make(map[id.CronID]*record),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Upsert inserts or overwrites the entry keyed by its CronID. An existing
// row keeps its CreatedAt and insertion sequence, so replaying an Added
// event changes neither identity nor ordering.
func (m *Store) Upsert(_ context.Context, entry *index.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := entry.Clone()
	if old, ok := m.entries[entry.CronID]; ok {
		cp.CreatedAt = old.entry.CreatedAt
		old.entry = cp
		return nil
	}
	m.nextSeq++
	m.entries[entry.CronID] = &record{entry: cp, seq: m.nextSeq}
	return nil
}

// UpdateNextRun sets next_run_date and updated_at for the given id.
// Returns 0 when the entry does not exist.
func (m *Store) UpdateNextRun(_ context.Context, cronID id.CronID, nextRun *time.Time, updatedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[cronID]
	if !ok {
		return 0, nil
	}
	if nextRun != nil {
		t := *nextRun
		rec.entry.NextRunDate = &t
	} else {
		rec.entry.NextRunDate = nil
	}
	rec.entry.UpdatedAt = updatedAt
	return 1, nil
}

// Delete removes the entry keyed by cronID. Deleting a missing id is a
// no-op.
func (m *Store) Delete(_ context.Context, cronID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, cronID)
	return nil
}

// Query scans, filters, sorts, and slices in memory. Linear cost is
// acceptable here: this backend is only selected when no durable store
// is configured, where cardinality stays low.
func (m *Store) Query(_ context.Context, q index.Query) ([]*index.Entry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	// Clone while the lock is held: records are mutated in place by
	// Upsert and UpdateNextRun, so nothing may read them unlocked.
	m.mu.RLock()
	matched := make([]*record, 0, len(m.entries))
	for _, rec := range m.entries {
		if q.Filter.AssistantID != "" && rec.entry.AssistantID != q.Filter.AssistantID {
			continue
		}
		if q.Filter.ThreadID != "" && rec.entry.ThreadID != q.Filter.ThreadID {
			continue
		}
		matched = append(matched, &record{entry: rec.entry.Clone(), seq: rec.seq})
	}
	m.mu.RUnlock()

	// Insertion order first, then a stable sort on the requested field,
	// so equal keys keep insertion order in both directions.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})
	desc := q.Order == index.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareField(matched[i].entry, matched[j].entry, q.SortBy)
		if desc {
			return c > 0
		}
		return c < 0
	})

	if q.Offset >= len(matched) {
		return []*index.Entry{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*index.Entry, len(matched))
	for i, rec := range matched {
		out[i] = rec.entry
	}
	return out, nil
}

// compareField orders two entries by the given sort field. Absent
// timestamps sort before present ones.
func compareField(a, b *index.Entry, f index.SortField) int {
	switch f {
	case index.SortByCronID:
		return strings.Compare(a.CronID.String(), b.CronID.String())
	case index.SortByAssistantID:
		return strings.Compare(a.AssistantID, b.AssistantID)
	case index.SortByThreadID:
		return strings.Compare(a.ThreadID, b.ThreadID)
	case index.SortByNextRunDate:
		return compareTimePtr(a.NextRunDate, b.NextRunDate)
	case index.SortByEndTime:
		return compareTimePtr(a.EndTime, b.EndTime)
	case index.SortByCreatedAt:
		return compareTime(a.CreatedAt, b.CreatedAt)
	case index.SortByUpdatedAt:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	default:
		// Query.Validate rejects unknown fields before we get here.
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return compareTime(*a, *b)
	}
}
