package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
)

// timeLayout is a fixed-width UTC format so text timestamps compare
// correctly under SQLite's lexicographic ORDER BY.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const entryColumns = `cron_id, assistant_id, thread_id, user_id, payload,
	schedule, next_run_date, end_time, created_at, updated_at, metadata`

// sortColumns maps validated sort fields to their column names.
var sortColumns = map[index.SortField]string{
	index.SortByCronID:      "cron_id",
	index.SortByAssistantID: "assistant_id",
	index.SortByThreadID:    "thread_id",
	index.SortByNextRunDate: "next_run_date",
	index.SortByEndTime:     "end_time",
	index.SortByCreatedAt:   "created_at",
	index.SortByUpdatedAt:   "updated_at",
}

// Upsert inserts or fully overwrites the row keyed by entry.CronID,
// preserving created_at on conflict.
func (s *Store) Upsert(ctx context.Context, entry *index.Entry) error {
	err := s.withRetry(ctx, "upsert", func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO cron_index (
				cron_id, assistant_id, thread_id, user_id, payload,
				schedule, next_run_date, end_time, created_at, updated_at, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (cron_id) DO UPDATE SET
				assistant_id  = excluded.assistant_id,
				thread_id     = excluded.thread_id,
				user_id       = excluded.user_id,
				payload       = excluded.payload,
				schedule      = excluded.schedule,
				next_run_date = excluded.next_run_date,
				end_time      = excluded.end_time,
				updated_at    = excluded.updated_at,
				metadata      = excluded.metadata`,
			entry.CronID.String(),
			nilIfEmpty(entry.AssistantID), nilIfEmpty(entry.ThreadID), nilIfEmpty(entry.UserID),
			blobOrNil(entry.Payload),
			entry.Schedule, fmtTimePtr(entry.NextRunDate), fmtTimePtr(entry.EndTime),
			fmtTime(entry.CreatedAt), fmtTime(entry.UpdatedAt),
			blobOrNil(entry.Metadata),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("cronsync/sqlite: upsert entry: %w", err)
	}
	return nil
}

// UpdateNextRun sets next_run_date and updated_at for the given id.
// Zero rows affected is not an error.
func (s *Store) UpdateNextRun(ctx context.Context, cronID id.CronID, nextRun *time.Time, updatedAt time.Time) (int64, error) {
	var rows int64
	err := s.withRetry(ctx, "update_next_run", func(ctx context.Context, tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `
			UPDATE cron_index
			SET next_run_date = ?, updated_at = ?
			WHERE cron_id = ?`,
			fmtTimePtr(nextRun), fmtTime(updatedAt), cronID.String(),
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("cronsync/sqlite: update next run: %w", err)
	}
	return rows, nil
}

// Delete removes the row keyed by cronID. Deleting a missing id succeeds
// with no effect.
func (s *Store) Delete(ctx context.Context, cronID id.CronID) error {
	err := s.withRetry(ctx, "delete", func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `DELETE FROM cron_index WHERE cron_id = ?`, cronID.String())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("cronsync/sqlite: delete entry: %w", err)
	}
	return nil
}

// Query returns entries matching q in the requested order.
func (s *Store) Query(ctx context.Context, q index.Query) ([]*index.Entry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args := buildQuerySQL(q)

	var entries []*index.Entry
	err := s.withRetry(ctx, "query", func(ctx context.Context, tx *sql.Tx) error {
		rows, queryErr := tx.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			e, scanErr := scanEntry(rows)
			if scanErr != nil {
				return scanErr
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("cronsync/sqlite: query entries: %w", err)
	}
	return entries, nil
}

// buildQuerySQL renders q into a SELECT. q must be validated first.
func buildQuerySQL(q index.Query) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(entryColumns)
	b.WriteString(" FROM cron_index")

	var args []any
	var conds []string
	if q.Filter.AssistantID != "" {
		conds = append(conds, "assistant_id = ?")
		args = append(args, q.Filter.AssistantID)
	}
	if q.Filter.ThreadID != "" {
		conds = append(conds, "thread_id = ?")
		args = append(args, q.Filter.ThreadID)
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	dir := "ASC"
	if q.Order == index.SortDesc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s LIMIT ? OFFSET ?", sortColumns[q.SortBy], dir)
	args = append(args, q.Limit, q.Offset)

	return b.String(), args
}

// scanEntry scans a single index row.
func scanEntry(rows *sql.Rows) (*index.Entry, error) {
	var (
		e           index.Entry
		idStr       string
		assistantID sql.NullString
		threadID    sql.NullString
		userID      sql.NullString
		payload     []byte
		nextRun     sql.NullString
		endTime     sql.NullString
		createdAt   string
		updatedAt   string
		metadata    []byte
	)
	err := rows.Scan(
		&idStr, &assistantID, &threadID, &userID, &payload,
		&e.Schedule, &nextRun, &endTime, &createdAt, &updatedAt, &metadata,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseCronID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse cron id %q: %w", idStr, parseErr)
	}
	e.CronID = parsedID

	e.AssistantID = assistantID.String
	e.ThreadID = threadID.String
	e.UserID = userID.String
	e.Payload = payload
	e.Metadata = metadata

	if e.NextRunDate, err = parseTimePtr(nextRun); err != nil {
		return nil, err
	}
	if e.EndTime, err = parseTimePtr(endTime); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &e, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func blobOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
