package cronsync

import "errors"

var (
	// Trigger errors.
	ErrInvalidExpression = errors.New("cronsync: invalid cron expression")

	// Query errors.
	ErrInvalidSortField = errors.New("cronsync: invalid sort field")
	ErrInvalidSortOrder = errors.New("cronsync: invalid sort order")
	ErrInvalidLimit     = errors.New("cronsync: limit out of range")
	ErrInvalidOffset    = errors.New("cronsync: negative offset")

	// Backend selection errors.
	ErrUnsupportedDriver  = errors.New("cronsync: unsupported database driver")
	ErrBackendUnavailable = errors.New("cronsync: durable backend unavailable")

	// Scheduler errors.
	ErrScheduleNotFound = errors.New("cronsync: schedule not found")
	ErrBrokerClosed     = errors.New("cronsync: event broker closed")

	// Syncer errors.
	ErrSyncerClosed = errors.New("cronsync: syncer closed")
)
