package index

import (
	"errors"
	"testing"

	"github.com/xraph/cronsync"
)

func TestParseSortField(t *testing.T) {
	t.Parallel()

	valid := []string{
		"cron_id", "assistant_id", "thread_id",
		"next_run_date", "end_time", "created_at", "updated_at",
	}
	for _, s := range valid {
		if _, err := ParseSortField(s); err != nil {
			t.Errorf("ParseSortField(%q): unexpected error %v", s, err)
		}
	}

	invalid := []string{"", "payload", "schedule", "CRON_ID", "created_at; DROP TABLE"}
	for _, s := range invalid {
		if _, err := ParseSortField(s); !errors.Is(err, cronsync.ErrInvalidSortField) {
			t.Errorf("ParseSortField(%q): expected ErrInvalidSortField, got %v", s, err)
		}
	}
}

func TestParseSortOrder(t *testing.T) {
	t.Parallel()

	if _, err := ParseSortOrder("asc"); err != nil {
		t.Errorf("asc: %v", err)
	}
	if _, err := ParseSortOrder("desc"); err != nil {
		t.Errorf("desc: %v", err)
	}
	for _, s := range []string{"", "ASC", "descending", "up"} {
		if _, err := ParseSortOrder(s); !errors.Is(err, cronsync.ErrInvalidSortOrder) {
			t.Errorf("ParseSortOrder(%q): expected ErrInvalidSortOrder, got %v", s, err)
		}
	}
}

func TestQueryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Query)
		wantErr error
	}{
		{"defaults valid", func(*Query) {}, nil},
		{"unknown sort field", func(q *Query) { q.SortBy = "payload" }, cronsync.ErrInvalidSortField},
		{"empty sort field", func(q *Query) { q.SortBy = "" }, cronsync.ErrInvalidSortField},
		{"bad order", func(q *Query) { q.Order = "sideways" }, cronsync.ErrInvalidSortOrder},
		{"zero limit", func(q *Query) { q.Limit = 0 }, cronsync.ErrInvalidLimit},
		{"excess limit", func(q *Query) { q.Limit = MaxLimit + 1 }, cronsync.ErrInvalidLimit},
		{"max limit ok", func(q *Query) { q.Limit = MaxLimit }, nil},
		{"negative offset", func(q *Query) { q.Offset = -1 }, cronsync.ErrInvalidOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultQuery()
			tt.mutate(&q)
			err := q.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEntryClone(t *testing.T) {
	t.Parallel()

	orig := &Entry{
		Schedule: "*/5 * * * *",
		Payload:  []byte(`{"a":1}`),
		Metadata: []byte(`{"b":2}`),
	}
	cp := orig.Clone()

	cp.Payload[2] = 'x'
	cp.Schedule = "0 0 * * *"

	if string(orig.Payload) != `{"a":1}` {
		t.Fatalf("clone shares payload backing array: %s", orig.Payload)
	}
	if orig.Schedule != "*/5 * * * *" {
		t.Fatal("clone shares schedule")
	}
}
