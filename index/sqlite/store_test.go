package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/xraph/cronsync"
	"github.com/xraph/cronsync/backoff"
	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func testEntry(t *testing.T) *index.Entry {
	t.Helper()

	next := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	return &index.Entry{
		CronID:      id.NewCronID(),
		AssistantID: "asst-a",
		ThreadID:    "thread-1",
		UserID:      "user-1",
		Payload:     []byte(`{"input":"hello"}`),
		Schedule:    "0 12 * * *",
		NextRunDate: &next,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    []byte(`{"owner":"tests"}`),
	}
}

func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	entry := testEntry(t)

	if err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Query(ctx, index.DefaultQuery())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}

	e := got[0]
	if e.CronID != entry.CronID {
		t.Errorf("CronID = %v, want %v", e.CronID, entry.CronID)
	}
	if e.AssistantID != entry.AssistantID || e.ThreadID != entry.ThreadID || e.UserID != entry.UserID {
		t.Errorf("identity fields mismatch: %+v", e)
	}
	if string(e.Payload) != string(entry.Payload) {
		t.Errorf("Payload = %s, want %s", e.Payload, entry.Payload)
	}
	if e.Schedule != entry.Schedule {
		t.Errorf("Schedule = %q, want %q", e.Schedule, entry.Schedule)
	}
	if e.NextRunDate == nil || !e.NextRunDate.Equal(*entry.NextRunDate) {
		t.Errorf("NextRunDate = %v, want %v", e.NextRunDate, entry.NextRunDate)
	}
	if e.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", e.EndTime)
	}
	if !e.CreatedAt.Equal(entry.CreatedAt) || !e.UpdatedAt.Equal(entry.UpdatedAt) {
		t.Errorf("timestamps mismatch: %+v", e)
	}
}

func TestUpsertReplayPreservesCreatedAt(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	entry := testEntry(t)

	if err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}

	replay := entry.Clone()
	replay.CreatedAt = entry.CreatedAt.Add(time.Hour)
	replay.UpdatedAt = entry.UpdatedAt.Add(time.Hour)
	replay.AssistantID = "asst-b"
	if err := s.Upsert(ctx, replay); err != nil {
		t.Fatalf("replay Upsert: %v", err)
	}

	got, err := s.Query(ctx, index.DefaultQuery())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries after replay, want 1", len(got))
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got[0].CreatedAt, entry.CreatedAt)
	}
	if !got[0].UpdatedAt.Equal(replay.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want refreshed %v", got[0].UpdatedAt, replay.UpdatedAt)
	}
	if got[0].AssistantID != "asst-b" {
		t.Errorf("AssistantID = %q, want overwritten value", got[0].AssistantID)
	}
}

func TestUpdateNextRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	entry := testEntry(t)

	if err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	next := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 9, 1, 12, 0, 1, 0, time.UTC)
	rows, err := s.UpdateNextRun(ctx, entry.CronID, &next, updated)
	if err != nil {
		t.Fatalf("UpdateNextRun: %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows = %d, want 1", rows)
	}

	got, err := s.Query(ctx, index.DefaultQuery())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].NextRunDate == nil || !got[0].NextRunDate.Equal(next) {
		t.Errorf("NextRunDate = %v, want %v", got[0].NextRunDate, next)
	}
	if !got[0].UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", got[0].UpdatedAt, updated)
	}

	// Exhausted schedules clear the next run date.
	rows, err = s.UpdateNextRun(ctx, entry.CronID, nil, updated)
	if err != nil {
		t.Fatalf("UpdateNextRun(nil): %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows = %d, want 1", rows)
	}
	got, err = s.Query(ctx, index.DefaultQuery())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].NextRunDate != nil {
		t.Errorf("NextRunDate = %v, want nil", got[0].NextRunDate)
	}
}

func TestUpdateNextRunUnknownID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	rows, err := s.UpdateNextRun(context.Background(), id.NewCronID(), nil, time.Now())
	if err != nil {
		t.Fatalf("UpdateNextRun: %v", err)
	}
	if rows != 0 {
		t.Fatalf("rows = %d, want 0", rows)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	entry := testEntry(t)

	if err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Delete(ctx, entry.CronID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, entry.CronID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	got, err := s.Query(ctx, index.DefaultQuery())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entries after delete, want 0", len(got))
	}
}

func TestQueryFilterAndSort(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		e := testEntry(t)
		e.CronID = id.NewCronID()
		if i%2 == 0 {
			e.AssistantID = "asst-even"
		} else {
			e.AssistantID = "asst-odd"
		}
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		e.UpdatedAt = e.CreatedAt
		if err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	q := index.Query{
		Filter: index.Filter{AssistantID: "asst-even"},
		SortBy: index.SortByCreatedAt,
		Order:  index.SortAsc,
		Limit:  100,
	}
	got, err := s.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Errorf("entries not in ascending created_at order at %d", i)
		}
	}

	q.Order = index.SortDesc
	got, err = s.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query desc: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Errorf("entries not in descending created_at order at %d", i)
		}
	}
}

func TestQueryPagination(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	const total = 17
	for i := 0; i < total; i++ {
		e := testEntry(t)
		e.CronID = id.NewCronID()
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		e.UpdatedAt = e.CreatedAt
		if err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	seen := make(map[id.CronID]bool)
	var all []*index.Entry
	for offset := 0; ; offset += 5 {
		page, err := s.Query(ctx, index.Query{
			SortBy: index.SortByCreatedAt,
			Order:  index.SortAsc,
			Limit:  5,
			Offset: offset,
		})
		if err != nil {
			t.Fatalf("Query offset %d: %v", offset, err)
		}
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			if seen[e.CronID] {
				t.Fatalf("duplicate entry %v across pages", e.CronID)
			}
			seen[e.CronID] = true
		}
		all = append(all, page...)
	}
	if len(all) != total {
		t.Fatalf("paged through %d entries, want %d", len(all), total)
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("pages out of order at %d", i)
		}
	}
}

func TestQueryValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Query(ctx, index.Query{SortBy: "bogus", Order: index.SortAsc, Limit: 10})
	if !errors.Is(err, cronsync.ErrInvalidSortField) {
		t.Fatalf("err = %v, want invalid sort field", err)
	}

	_, err = s.Query(ctx, index.Query{SortBy: index.SortByCreatedAt, Order: index.SortAsc, Limit: 0})
	if !errors.Is(err, cronsync.ErrInvalidLimit) {
		t.Fatalf("err = %v, want invalid limit", err)
	}
}

func TestTimeLayoutSortsLexicographically(t *testing.T) {
	t.Parallel()

	times := []time.Time{
		time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC),
		time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 999999999, time.UTC),
		time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		a, b := fmtTime(times[i-1]), fmtTime(times[i])
		if len(a) != len(b) {
			t.Errorf("layout not fixed width: %q vs %q", a, b)
		}
		if a >= b {
			t.Errorf("lexicographic order broken: %q >= %q", a, b)
		}
	}
}

func newRetryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:",
		WithRetry(3, backoff.NewConstant(time.Millisecond)),
		WithAttemptTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWithRetryRecoversFromTransientError(t *testing.T) {
	t.Parallel()

	s := newRetryStore(t)

	attempts := 0
	err := s.withRetry(context.Background(), "test", func(context.Context, *sql.Tx) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryPermanentErrorFailsImmediately(t *testing.T) {
	t.Parallel()

	s := newRetryStore(t)

	permanent := errors.New("constraint failed: UNIQUE constraint failed")
	attempts := 0
	err := s.withRetry(context.Background(), "test", func(context.Context, *sql.Tx) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on permanent errors)", attempts)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	s := newRetryStore(t)

	busy := errors.New("database is locked")
	attempts := 0
	err := s.withRetry(context.Background(), "test", func(context.Context, *sql.Tx) error {
		attempts++
		return busy
	})
	if !errors.Is(err, busy) {
		t.Fatalf("err = %v, want last transient error", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want the full budget of 3", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", errors.New("SQLITE_BUSY: database is busy"), true},
		{"locked", errors.New("database is locked (5)"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"constraint", errors.New("constraint failed: UNIQUE constraint failed"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
