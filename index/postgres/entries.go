package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
)

const entryColumns = `cron_id, assistant_id, thread_id, user_id, payload,
	schedule, next_run_date, end_time, created_at, updated_at, metadata`

// sortColumns maps validated sort fields to their column names. Query
// validation rejects anything outside this map before SQL is built.
var sortColumns = map[index.SortField]string{
	index.SortByCronID:      "cron_id",
	index.SortByAssistantID: "assistant_id",
	index.SortByThreadID:    "thread_id",
	index.SortByNextRunDate: "next_run_date",
	index.SortByEndTime:     "end_time",
	index.SortByCreatedAt:   "created_at",
	index.SortByUpdatedAt:   "updated_at",
}

// Upsert inserts or fully overwrites the row keyed by entry.CronID.
// On conflict the existing created_at is preserved so the field is set
// exactly once per entry lifetime.
func (s *Store) Upsert(ctx context.Context, entry *index.Entry) error {
	err := s.withRetry(ctx, "upsert", func(ctx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, `
			INSERT INTO cron_index (
				cron_id, assistant_id, thread_id, user_id, payload,
				schedule, next_run_date, end_time, created_at, updated_at, metadata
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (cron_id) DO UPDATE SET
				assistant_id  = EXCLUDED.assistant_id,
				thread_id     = EXCLUDED.thread_id,
				user_id       = EXCLUDED.user_id,
				payload       = EXCLUDED.payload,
				schedule      = EXCLUDED.schedule,
				next_run_date = EXCLUDED.next_run_date,
				end_time      = EXCLUDED.end_time,
				updated_at    = EXCLUDED.updated_at,
				metadata      = EXCLUDED.metadata`,
			entry.CronID.String(),
			nilIfEmpty(entry.AssistantID), nilIfEmpty(entry.ThreadID), nilIfEmpty(entry.UserID),
			rawOrNil(entry.Payload),
			entry.Schedule, entry.NextRunDate, entry.EndTime,
			entry.CreatedAt, entry.UpdatedAt,
			rawOrNil(entry.Metadata),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("cronsync/postgres: upsert entry: %w", err)
	}
	return nil
}

// UpdateNextRun sets next_run_date and updated_at for the given id.
// Zero rows affected is not an error.
func (s *Store) UpdateNextRun(ctx context.Context, cronID id.CronID, nextRun *time.Time, updatedAt time.Time) (int64, error) {
	var rows int64
	err := s.withRetry(ctx, "update_next_run", func(ctx context.Context, tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE cron_index
			SET next_run_date = $2, updated_at = $3
			WHERE cron_id = $1`,
			cronID.String(), nextRun, updatedAt,
		)
		if execErr != nil {
			return execErr
		}
		rows = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cronsync/postgres: update next run: %w", err)
	}
	return rows, nil
}

// Delete removes the row keyed by cronID. Deleting a missing id succeeds
// with no effect.
func (s *Store) Delete(ctx context.Context, cronID id.CronID) error {
	err := s.withRetry(ctx, "delete", func(ctx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, `DELETE FROM cron_index WHERE cron_id = $1`, cronID.String())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("cronsync/postgres: delete entry: %w", err)
	}
	return nil
}

// Query returns entries matching q in the requested order. Ties fall to
// the storage engine's stable scan order.
func (s *Store) Query(ctx context.Context, q index.Query) ([]*index.Entry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sql, args := buildQuerySQL(q)

	var entries []*index.Entry
	err := s.withRetry(ctx, "query", func(ctx context.Context, tx pgx.Tx) error {
		rows, queryErr := tx.Query(ctx, sql, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		// Reset on retry so a replayed attempt doesn't double up.
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
		return nil, fmt.Errorf("cronsync/postgres: query entries: %w", err)
	}
	return entries, nil
}

// buildQuerySQL renders q into a SELECT with positional args. q must be
// validated first; the sort column comes from the allow-list map, never
// from caller input.
func buildQuerySQL(q index.Query) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(entryColumns)
	b.WriteString(" FROM cron_index")

	var args []any
	var conds []string
	if q.Filter.AssistantID != "" {
		args = append(args, q.Filter.AssistantID)
		conds = append(conds, fmt.Sprintf("assistant_id = $%d", len(args)))
	}
	if q.Filter.ThreadID != "" {
		args = append(args, q.Filter.ThreadID)
		conds = append(conds, fmt.Sprintf("thread_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	dir := "ASC"
	if q.Order == index.SortDesc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", sortColumns[q.SortBy], dir)

	args = append(args, q.Limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))
	args = append(args, q.Offset)
	fmt.Fprintf(&b, " OFFSET $%d", len(args))

	return b.String(), args
}

// scanEntry scans a single index row.
func scanEntry(row pgx.Row) (*index.Entry, error) {
	var (
		e           index.Entry
		idStr       string
		assistantID *string
		threadID    *string
		userID      *string
		payload     []byte
		metadata    []byte
	)
	err := row.Scan(
		&idStr, &assistantID, &threadID, &userID, &payload,
		&e.Schedule, &e.NextRunDate, &e.EndTime, &e.CreatedAt, &e.UpdatedAt, &metadata,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseCronID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse cron id %q: %w", idStr, parseErr)
	}
	e.CronID = parsedID

	if assistantID != nil {
		e.AssistantID = *assistantID
	}
	if threadID != nil {
		e.ThreadID = *threadID
	}
	if userID != nil {
		e.UserID = *userID
	}
	e.Payload = payload
	e.Metadata = metadata

	return &e, nil
}

// nilIfEmpty maps empty strings to NULL so absent metadata fields stay
// absent instead of becoming empty text.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// rawOrNil maps empty JSON payloads to NULL.
func rawOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
