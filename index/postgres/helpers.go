package postgres

import (
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transient SQLSTATE codes: retrying the transaction is expected to
// succeed once the conflicting work has finished.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// isTransient reports whether err is worth retrying: a connection-level
// failure or a transaction that lost a serialization/deadlock race.
// Constraint violations, syntax errors, and other server rejections are
// permanent and fail immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
