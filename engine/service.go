package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cronsync/id"
	"github.com/xraph/cronsync/index"
	"github.com/xraph/cronsync/scheduler"
	"github.com/xraph/cronsync/trigger"
)

// Cron is the public read shape for one cron index entry.
type Cron struct {
	CronID      id.CronID       `json:"cron_id"`
	AssistantID string          `json:"assistant_id,omitempty"`
	ThreadID    string          `json:"thread_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Schedule    string          `json:"schedule"`
	NextRunDate *time.Time      `json:"next_run_date,omitempty"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func cronFromEntry(e *index.Entry) *Cron {
	return &Cron{
		CronID:      e.CronID,
		AssistantID: e.AssistantID,
		ThreadID:    e.ThreadID,
		UserID:      e.UserID,
		Payload:     e.Payload,
		Schedule:    e.Schedule,
		NextRunDate: e.NextRunDate,
		EndTime:     e.EndTime,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Metadata:    e.Metadata,
	}
}

// SearchRequest carries the caller's search parameters. Zero values mean
// "use the default": empty sort_by sorts by created_at, empty sort_order
// sorts descending, zero limit returns ten entries.
type SearchRequest struct {
	AssistantID string `json:"assistant_id,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	SortBy      string `json:"sort_by,omitempty"`
	SortOrder   string `json:"sort_order,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// CreateCronRequest carries everything needed to register a new cron job.
type CreateCronRequest struct {
	AssistantID string          `json:"assistant_id,omitempty"`
	ThreadID    string          `json:"thread_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Schedule    string          `json:"schedule"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Service is the caller-facing surface over the cron index and the
// scheduling collaborator: search the read model, register new
// schedules, remove existing ones.
type Service struct {
	store  index.Store
	client scheduler.Client
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. loc is the timezone used for trigger
// computation at creation; nil means UTC.
func NewService(store index.Store, client scheduler.Client, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		client: client,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Search queries the cron index. Sort and pagination parameters are
// validated before the store is touched; an unknown sort field or
// out-of-range limit is rejected, never silently replaced.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]*Cron, error) {
	q := index.DefaultQuery()
	q.Filter = index.Filter{
		AssistantID: req.AssistantID,
		ThreadID:    req.ThreadID,
	}

	if req.SortBy != "" {
		field, err := index.ParseSortField(req.SortBy)
		if err != nil {
			return nil, fmt.Errorf("cronsync/engine: search: %w", err)
		}
		q.SortBy = field
	}
	if req.SortOrder != "" {
		order, err := index.ParseSortOrder(req.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("cronsync/engine: search: %w", err)
		}
		q.Order = order
	}
	if req.Limit != 0 {
		q.Limit = req.Limit
	}
	q.Offset = req.Offset

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("cronsync/engine: search: %w", err)
	}

	entries, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("cronsync/engine: search: %w", err)
	}

	crons := make([]*Cron, len(entries))
	for i, e := range entries {
		crons[i] = cronFromEntry(e)
	}
	return crons, nil
}

// CreateCron validates the schedule expression, registers the schedule
// with the scheduling collaborator, and returns the public shape. The
// index row appears asynchronously once the Added event is projected.
func (s *Service) CreateCron(ctx context.Context, req CreateCronRequest) (*Cron, error) {
	trig, err := trigger.Compute(req.Schedule, req.EndTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("cronsync/engine: create cron: %w", err)
	}

	meta := scheduler.Metadata{
		AssistantID: req.AssistantID,
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
		Payload:     req.Payload,
		Schedule:    req.Schedule,
		Metadata:    req.Metadata,
	}
	sched, err := s.client.CreateSchedule(ctx, meta, trig)
	if err != nil {
		return nil, fmt.Errorf("cronsync/engine: create cron: %w", err)
	}

	s.logger.Info("cron job created",
		slog.String("cron_id", sched.ID.String()),
		slog.String("schedule", req.Schedule),
	)

	now := s.now().UTC()
	return &Cron{
		CronID:      sched.ID,
		AssistantID: req.AssistantID,
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
		Payload:     req.Payload,
		Schedule:    req.Schedule,
		NextRunDate: sched.NextFireTime,
		EndTime:     trig.EndTime(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    req.Metadata,
	}, nil
}

// DeleteCron removes the schedule from the collaborator. The index row
// disappears once the Removed event is projected. Returns
// cronsync.ErrScheduleNotFound for unknown ids.
func (s *Service) DeleteCron(ctx context.Context, cronID id.CronID) error {
	if err := s.client.RemoveSchedule(ctx, cronID); err != nil {
		return fmt.Errorf("cronsync/engine: delete cron: %w", err)
	}
	s.logger.Info("cron job deleted", slog.String("cron_id", cronID.String()))
	return nil
}
